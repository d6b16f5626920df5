package ports

import (
	"context"

	"algoportfolio/internal/domain"
)

// QuoteProvider defines the interface for an upstream market data source.
type QuoteProvider interface {
	// Name identifies the provider in logs and health output.
	Name() string
	// FetchQuote retrieves the current quote for a symbol.
	// Returns ErrSymbolNotFound (wrapped) when the provider does not know the
	// symbol, ErrRateLimited when throttled, ErrFetchFailed otherwise.
	FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	// FetchProfile retrieves listing and fundamental data for a symbol.
	// Fields the provider cannot supply stay nil on the returned profile.
	FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error)
	// FetchDailyHistory retrieves up to days daily closes, oldest first.
	FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error)
}

// MarketData is the consumer-facing market data surface: a provider plus a
// liveness probe.
type MarketData interface {
	QuoteProvider

	// HealthCheck reports whether the provider currently serves usable data.
	// It never returns an error; failures of any kind read as false.
	HealthCheck(ctx context.Context) bool
}
