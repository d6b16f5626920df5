package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

	"github.com/shopspring/decimal"
)

const (
	maxSymbolLength = 10

	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// PortfolioService is the accounting core: it applies buy and sell events to
// positions using weighted average cost, maintains the append-only ledger,
// and derives the read views served to callers.
type PortfolioService struct {
	store  ports.Store
	market ports.MarketData
	logger ports.Logger

	historyDefault int
	historyMax     int

	// locks serializes mutations per (owner, symbol). The store transaction
	// is the second line of defense once more than one process writes.
	locks keyedMutex
}

// Config holds the dependencies and tunables of the portfolio service.
type Config struct {
	Store  ports.Store
	Market ports.MarketData
	Logger ports.Logger

	HistoryDefaultLimit int // Entries returned when the caller passes no limit, defaults to 10
	HistoryMaxLimit     int // Ceiling on caller-supplied limits, defaults to 50
}

// NewPortfolioService creates a new portfolio service instance.
func NewPortfolioService(cfg Config) (*PortfolioService, error) {
	if cfg.Store == nil || cfg.Market == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for PortfolioService")
	}
	historyDefault := cfg.HistoryDefaultLimit
	if historyDefault <= 0 {
		historyDefault = defaultHistoryLimit
	}
	historyMax := cfg.HistoryMaxLimit
	if historyMax <= 0 {
		historyMax = maxHistoryLimit
	}
	if historyDefault > historyMax {
		return nil, fmt.Errorf("history default limit %d exceeds max limit %d", historyDefault, historyMax)
	}

	return &PortfolioService{
		store:          cfg.Store,
		market:         cfg.Market,
		logger:         cfg.Logger,
		historyDefault: historyDefault,
		historyMax:     historyMax,
	}, nil
}

// RecordBuy applies a purchase to the owner's position in symbol, creating
// the account and the position on first use. The position's average cost is
// recomputed as the quantity-weighted mean of the prior basis and the
// incoming lot. The appended ledger entry carries the incoming quantity and
// price, not the new totals.
func (s *PortfolioService) RecordBuy(ctx context.Context, ownerID int64, symbol string, quantity, price decimal.Decimal) (*domain.Position, error) {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := validateAmounts(quantity, price); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(mutationKey(ownerID, symbol))
	defer unlock()

	var position *domain.Position
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		account, err := s.getOrCreateAccount(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		position, err = tx.FindPositionBySymbol(ctx, account.ID, symbol)
		if err != nil {
			return fmt.Errorf("read position %s: %w: %w", symbol, ports.ErrPersistence, err)
		}

		if position == nil {
			position = &domain.Position{
				AccountID: account.ID,
				Symbol:    symbol,
				Quantity:  quantity,
				AvgCost:   price,
				CreatedAt: time.Now().UTC(),
			}
			if _, err := tx.CreatePosition(ctx, position); err != nil {
				return fmt.Errorf("create position %s: %w: %w", symbol, ports.ErrPersistence, err)
			}
		} else {
			position.ApplyBuy(quantity, price)
			if err := tx.UpdatePosition(ctx, position); err != nil {
				return fmt.Errorf("update position %s: %w: %w", symbol, ports.ErrPersistence, err)
			}
		}

		entry := &domain.LedgerEntry{
			PositionID: position.ID,
			Kind:       domain.EntryBuy,
			Quantity:   quantity,
			UnitPrice:  price,
			Timestamp:  time.Now().UTC(),
		}
		if _, err := tx.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("append buy entry for %s: %w: %w", symbol, ports.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Buy recorded", map[string]interface{}{
		"ownerID":  ownerID,
		"symbol":   symbol,
		"quantity": quantity.String(),
		"price":    price.String(),
		"held":     position.Quantity.String(),
	})
	return position, nil
}

// RecordSell applies a sale to the owner's position in symbol. Selling never
// changes the average cost: the remaining units cost what they cost, only
// the quantity shrinks. A position sold down to exactly zero is retained so
// its ledger history stays reachable; the returned position carries the new
// quantity so callers can tell a full close from a partial sale.
//
// Returns ErrNotHeld when the owner has no account or no active position in
// symbol, and an *ports.InsufficientHoldingsError when the requested
// quantity exceeds the held quantity. Neither outcome writes anything.
func (s *PortfolioService) RecordSell(ctx context.Context, ownerID int64, symbol string, quantity, price decimal.Decimal) (*domain.Position, error) {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := validateAmounts(quantity, price); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(mutationKey(ownerID, symbol))
	defer unlock()

	var position *domain.Position
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		account, err := tx.FindAccountByOwner(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("read account for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
		}
		if account == nil {
			return fmt.Errorf("owner %d holds no %s: %w", ownerID, symbol, ports.ErrNotHeld)
		}

		position, err = tx.FindPositionBySymbol(ctx, account.ID, symbol)
		if err != nil {
			return fmt.Errorf("read position %s: %w: %w", symbol, ports.ErrPersistence, err)
		}
		if position == nil || !position.IsActive() {
			return fmt.Errorf("owner %d holds no %s: %w", ownerID, symbol, ports.ErrNotHeld)
		}
		if quantity.GreaterThan(position.Quantity) {
			return &ports.InsufficientHoldingsError{
				Symbol:    symbol,
				Held:      position.Quantity,
				Requested: quantity,
			}
		}

		position.ApplySell(quantity)
		if err := tx.UpdatePosition(ctx, position); err != nil {
			return fmt.Errorf("update position %s: %w: %w", symbol, ports.ErrPersistence, err)
		}

		entry := &domain.LedgerEntry{
			PositionID: position.ID,
			Kind:       domain.EntrySell,
			Quantity:   quantity,
			UnitPrice:  price,
			Timestamp:  time.Now().UTC(),
		}
		if _, err := tx.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("append sell entry for %s: %w: %w", symbol, ports.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Sell recorded", map[string]interface{}{
		"ownerID":   ownerID,
		"symbol":    symbol,
		"quantity":  quantity.String(),
		"price":     price.String(),
		"remaining": position.Quantity.String(),
	})
	return position, nil
}

// ActivePositions lists the owner's positions with a non-zero quantity,
// ordered by symbol. An owner without an account holds nothing.
func (s *PortfolioService) ActivePositions(ctx context.Context, ownerID int64) ([]*domain.Position, error) {
	account, err := s.store.FindAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("read account for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
	}
	if account == nil {
		return []*domain.Position{}, nil
	}

	positions, err := s.store.FindActivePositions(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("read active positions for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
	}
	return positions, nil
}

// Transactions lists the owner's most recent ledger entries, newest first.
// A non-positive limit falls back to the configured default; anything above
// the configured ceiling is clamped to protect the store from unbounded
// scans.
func (s *PortfolioService) Transactions(ctx context.Context, ownerID int64, limit int) ([]*domain.LedgerLine, error) {
	if limit <= 0 {
		limit = s.historyDefault
	} else if limit > s.historyMax {
		limit = s.historyMax
	}

	account, err := s.store.FindAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("read account for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
	}
	if account == nil {
		return []*domain.LedgerLine{}, nil
	}

	lines, err := s.store.FindEntriesByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("read ledger entries for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
	}
	return lines, nil
}

// Valuation prices the owner's active holdings against current quotes. A
// failed quote degrades that one holding to its cost basis instead of
// failing the whole view; HasQuote marks which price the holding carries.
func (s *PortfolioService) Valuation(ctx context.Context, ownerID int64) (*domain.PortfolioValuation, error) {
	positions, err := s.ActivePositions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	valuation := &domain.PortfolioValuation{Holdings: make([]domain.HoldingValuation, 0, len(positions))}
	for _, pos := range positions {
		holding := domain.HoldingValuation{Position: pos, CostBasis: pos.CostBasis()}

		quote, err := s.market.FetchQuote(ctx, pos.Symbol)
		if err != nil {
			s.logger.Warn(ctx, "Quote unavailable, valuing holding at cost basis", map[string]interface{}{
				"symbol": pos.Symbol,
				"error":  err.Error(),
			})
			holding.Price = pos.AvgCost
			holding.HasQuote = false
		} else {
			holding.Price = decimal.NewFromFloat(quote.Price)
			holding.HasQuote = true
		}

		holding.MarketValue = pos.MarketValue(holding.Price)
		holding.Unrealized = holding.MarketValue.Sub(holding.CostBasis)

		valuation.Holdings = append(valuation.Holdings, holding)
		valuation.TotalValue = valuation.TotalValue.Add(holding.MarketValue)
		valuation.TotalCost = valuation.TotalCost.Add(holding.CostBasis)
		valuation.TotalUnrealized = valuation.TotalUnrealized.Add(holding.Unrealized)
	}
	return valuation, nil
}

// getOrCreateAccount resolves the owner's account, creating it lazily on the
// first mutating operation. A duplicate error means another writer won the
// creation race, in which case the existing account is fetched.
func (s *PortfolioService) getOrCreateAccount(ctx context.Context, tx ports.Store, ownerID int64) (*domain.Account, error) {
	account, err := tx.FindAccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("read account for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
	}
	if account != nil {
		return account, nil
	}

	account, err = tx.CreateAccount(ctx, ownerID, domain.DefaultAccountName)
	if err == nil {
		s.logger.Info(ctx, "Account created", map[string]interface{}{"ownerID": ownerID, "accountID": account.ID})
		return account, nil
	}
	if errors.Is(err, ports.ErrDuplicate) {
		account, ferr := tx.FindAccountByOwner(ctx, ownerID)
		if ferr != nil {
			return nil, fmt.Errorf("read account for owner %d after create race: %w: %w", ownerID, ports.ErrPersistence, ferr)
		}
		if account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("create account for owner %d: %w: %w", ownerID, ports.ErrPersistence, err)
}

// canonicalSymbol validates and upper-cases a ticker symbol. Violations are
// rejected here, before any store access.
func canonicalSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("symbol must not be empty: %w", ports.ErrValidation)
	}
	if len(symbol) > maxSymbolLength {
		return "", fmt.Errorf("symbol %q exceeds %d characters: %w", symbol, maxSymbolLength, ports.ErrValidation)
	}
	for _, r := range symbol {
		if !unicode.IsLetter(r) {
			return "", fmt.Errorf("symbol %q must be alphabetic: %w", symbol, ports.ErrValidation)
		}
	}
	return symbol, nil
}

// validateAmounts rejects non-positive quantities and prices.
func validateAmounts(quantity, price decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("quantity %s must be positive: %w", quantity, ports.ErrValidation)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s must be positive: %w", price, ports.ErrValidation)
	}
	return nil
}

func mutationKey(ownerID int64, symbol string) string {
	return fmt.Sprintf("%d/%s", ownerID, symbol)
}
