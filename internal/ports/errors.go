package ports

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Standard application-level errors.
// Adapters and services wrap underlying failures with these so callers can
// branch with errors.Is / errors.As without knowing the infrastructure.
var (
	// Request validation and business rules
	ErrValidation           = errors.New("invalid request parameters")
	ErrNotHeld              = errors.New("no active holding for symbol")
	ErrInsufficientHoldings = errors.New("sell quantity exceeds held quantity")

	// Market data
	ErrRateLimited    = errors.New("provider rate limit exceeded")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrFetchFailed    = errors.New("market data fetch failed")

	// Store
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("record already exists")
	ErrPersistence = errors.New("persistence failure")
)

// InsufficientHoldingsError reports an oversell together with the quantities
// needed to phrase a correction. It matches ErrInsufficientHoldings under
// errors.Is and exposes its fields via errors.As.
type InsufficientHoldingsError struct {
	Symbol    string
	Held      decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("cannot sell %s %s: only %s held", e.Requested, e.Symbol, e.Held)
}

// Is reports a match for the ErrInsufficientHoldings sentinel.
func (e *InsufficientHoldingsError) Is(target error) bool {
	return target == ErrInsufficientHoldings
}
