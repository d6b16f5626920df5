package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current holding of one symbol within an account.
// Positions are never deleted: a fully sold position stays at quantity zero
// so its ledger history remains reachable.
type Position struct {
	ID        int64           // Unique identifier (from DB)
	AccountID int64           // Owning account
	Symbol    string          // Canonical (upper-case) ticker symbol
	Quantity  decimal.Decimal // Units currently held, zero or more
	AvgCost   decimal.Decimal // Weighted average cost per unit
	CreatedAt time.Time       // Timestamp when the position was first opened
}

// IsActive reports whether the position currently holds any units.
func (p *Position) IsActive() bool {
	return p.Quantity.IsPositive()
}

// CostBasis returns quantity * average cost.
func (p *Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AvgCost)
}

// MarketValue returns quantity * price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// ApplyBuy folds a purchase into the position using weighted average cost:
//
//	newAvg = (heldQty*heldAvg + qty*price) / (heldQty + qty)
//
// A position previously sold down to zero restarts its basis at the incoming
// price, which is what the formula yields for heldQty == 0.
func (p *Position) ApplyBuy(qty, price decimal.Decimal) {
	newQty := p.Quantity.Add(qty)
	totalCost := p.Quantity.Mul(p.AvgCost).Add(qty.Mul(price))
	p.AvgCost = totalCost.Div(newQty)
	p.Quantity = newQty
}

// ApplySell removes units from the position. The average cost is left
// untouched: selling does not change what the remaining units cost to
// acquire.
func (p *Position) ApplySell(qty decimal.Decimal) {
	p.Quantity = p.Quantity.Sub(qty)
}
