package domain

import "github.com/shopspring/decimal"

// HoldingValuation is one active position priced for display.
type HoldingValuation struct {
	Position    *Position
	Price       decimal.Decimal // Current price, or avg cost when HasQuote is false
	HasQuote    bool            // False when the quote fetch failed and cost basis was substituted
	MarketValue decimal.Decimal // Quantity * Price
	CostBasis   decimal.Decimal // Quantity * AvgCost
	Unrealized  decimal.Decimal // MarketValue - CostBasis
}

// PortfolioValuation aggregates an account's active holdings.
type PortfolioValuation struct {
	Holdings        []HoldingValuation
	TotalValue      decimal.Decimal
	TotalCost       decimal.Decimal
	TotalUnrealized decimal.Decimal
}

// TotalUnrealizedPercent returns unrealized P&L relative to cost basis,
// zero when the cost basis is zero.
func (v *PortfolioValuation) TotalUnrealizedPercent() decimal.Decimal {
	if v.TotalCost.IsZero() {
		return decimal.Zero
	}
	return v.TotalUnrealized.Div(v.TotalCost).Mul(decimal.NewFromInt(100))
}
