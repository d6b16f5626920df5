package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind is the direction of a ledger entry.
type EntryKind string

const (
	EntryBuy  EntryKind = "BUY"
	EntrySell EntryKind = "SELL"
)

// LedgerEntry is one immutable row of the append-only transaction ledger.
type LedgerEntry struct {
	ID         int64           // Unique identifier (from DB)
	PositionID int64           // Position this entry belongs to
	Kind       EntryKind       // BUY or SELL
	Quantity   decimal.Decimal // Units transacted, always positive
	UnitPrice  decimal.Decimal // Price per unit reported by the caller
	Timestamp  time.Time       // Assigned when the entry is written
}

// TotalValue returns quantity * unit price.
func (e *LedgerEntry) TotalValue() decimal.Decimal {
	return e.Quantity.Mul(e.UnitPrice)
}

// LedgerLine is a ledger entry joined with the symbol of its position, the
// shape history listings are served in.
type LedgerLine struct {
	Entry  *LedgerEntry
	Symbol string
}
