package domain

import "time"

// Quote is a point-in-time snapshot of one symbol's market data.
type Quote struct {
	Symbol        string    // Canonical ticker symbol
	Price         float64   // Last traded price
	PreviousClose float64   // Prior session close (0 when the provider omits it)
	Change        float64   // Absolute day change, zero when no previous close is known
	ChangePercent float64   // Day change in percent, zero when no previous close is known
	Volume        int64     // Day volume (0 when the provider omits it)
	Currency      string    // Quote currency, defaults to USD
	Timestamp     time.Time // When the quote was built
}

// Profile describes a symbol's listing and fundamentals. Providers omit
// fields freely; nil means the upstream payload had nothing usable.
type Profile struct {
	Symbol               string
	Name                 string
	Sector               string
	Industry             string
	Description          string
	MarketCap            *float64
	PERatio              *float64
	EPS                  *float64
	DividendYieldPercent *float64 // Normalized to percent of 100
	FiftyTwoWeekHigh     *float64
	FiftyTwoWeekLow      *float64
	AverageVolume        *float64
}

// PricePoint is one daily close of a symbol's price history.
type PricePoint struct {
	Date  time.Time // Trading day (UTC)
	Close float64   // Closing price
}

// Analysis bundles a quote, a profile and derived technicals for one symbol.
// Members are nil when the underlying inputs were insufficient, e.g. too
// little history for an indicator period.
type Analysis struct {
	Quote                *Quote
	Profile              *Profile
	SMA50                *float64
	SMA200               *float64
	RSI14                *float64
	FiftyTwoWeekPosition *float64 // Where price sits in the 52-week range, 0..100
}
