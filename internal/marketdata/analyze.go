package marketdata

import (
	"context"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/indicators"
	"algoportfolio/internal/ports"
)

const (
	analysisHistoryDays = 365
	smaShortPeriod      = 50
	smaLongPeriod       = 200
	rsiPeriod           = 14
)

// Analyze aggregates a quote, a profile and derived technicals for one
// symbol. The quote is mandatory; a failed profile or history fetch degrades
// the analysis instead of failing it, leaving the affected members nil.
func Analyze(ctx context.Context, md ports.MarketData, symbol string, logger ports.Logger) (*domain.Analysis, error) {
	quote, err := md.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	analysis := &domain.Analysis{Quote: quote}

	profile, err := md.FetchProfile(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "Profile unavailable for analysis", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	} else {
		analysis.Profile = profile
		analysis.FiftyTwoWeekPosition = fiftyTwoWeekPosition(quote.Price, profile)
	}

	history, err := md.FetchDailyHistory(ctx, symbol, analysisHistoryDays)
	if err != nil {
		logger.Warn(ctx, "History unavailable for analysis", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return analysis, nil
	}

	closes := make([]float64, 0, len(history))
	for _, p := range history {
		closes = append(closes, p.Close)
	}

	if v, err := indicators.SMA(closes, smaShortPeriod); err == nil {
		analysis.SMA50 = &v
	}
	if v, err := indicators.SMA(closes, smaLongPeriod); err == nil {
		analysis.SMA200 = &v
	}
	if v, err := indicators.RSI(closes, rsiPeriod); err == nil {
		analysis.RSI14 = &v
	}
	return analysis, nil
}

// fiftyTwoWeekPosition places the current price inside the 52-week range as
// a percentage, 0 at the low and 100 at the high. Nil when the profile lacks
// the range or the range is degenerate.
func fiftyTwoWeekPosition(price float64, profile *domain.Profile) *float64 {
	if profile.FiftyTwoWeekHigh == nil || profile.FiftyTwoWeekLow == nil {
		return nil
	}
	high, low := *profile.FiftyTwoWeekHigh, *profile.FiftyTwoWeekLow
	if high <= low {
		return nil
	}
	pos := (price - low) / (high - low) * 100
	return &pos
}
