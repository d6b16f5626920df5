package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

	"github.com/go-redis/cache/v8"
)

const (
	defaultPriceTTL   = time.Minute
	defaultProfileTTL = time.Hour

	// Upper bound on cached entries per cache; one entry per symbol, so
	// this covers far more tickers than any single deployment tracks.
	cacheSize = 10000
)

// CachedClient layers a short-lived in-process cache over a market data
// client so bursts of valuation requests do not hammer the provider. Quotes
// go stale fast and get a short TTL; profiles barely move intraday and keep
// a long one. History and health checks pass through uncached.
type CachedClient struct {
	inner    ports.MarketData
	logger   ports.Logger
	quotes   *cache.Cache
	profiles *cache.Cache
}

// CacheConfig holds configuration for the caching wrapper.
type CacheConfig struct {
	Inner      ports.MarketData
	Logger     ports.Logger
	PriceTTL   time.Duration // Quote cache lifetime, defaults to 60s
	ProfileTTL time.Duration // Profile cache lifetime, defaults to 1h
}

// NewCachedClient wraps a market data client with TinyLFU caches.
func NewCachedClient(cfg CacheConfig) (*CachedClient, error) {
	if cfg.Inner == nil {
		return nil, fmt.Errorf("inner client is required for cached market data client")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for cached market data client")
	}
	priceTTL := cfg.PriceTTL
	if priceTTL <= 0 {
		priceTTL = defaultPriceTTL
	}
	profileTTL := cfg.ProfileTTL
	if profileTTL <= 0 {
		profileTTL = defaultProfileTTL
	}

	// Local cache only: the TTL is fixed per cache instance, hence one
	// cache for quotes and another for profiles.
	return &CachedClient{
		inner:    cfg.Inner,
		logger:   cfg.Logger,
		quotes:   cache.New(&cache.Options{LocalCache: cache.NewTinyLFU(cacheSize, priceTTL)}),
		profiles: cache.New(&cache.Options{LocalCache: cache.NewTinyLFU(cacheSize, profileTTL)}),
	}, nil
}

// Name identifies the underlying provider.
func (c *CachedClient) Name() string { return c.inner.Name() }

// FetchQuote serves a cached quote when one is fresh, delegating to the
// inner client otherwise.
func (c *CachedClient) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	key := "quote:" + symbol

	var cached domain.Quote
	if err := c.quotes.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn(ctx, "Quote cache read failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}

	quote, err := c.inner.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.quotes.Set(&cache.Item{Ctx: ctx, Key: key, Value: quote}); err != nil {
		c.logger.Warn(ctx, "Quote cache write failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}
	return quote, nil
}

// FetchProfile serves a cached profile when one is fresh, delegating to the
// inner client otherwise.
func (c *CachedClient) FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error) {
	key := "profile:" + symbol

	var cached domain.Profile
	if err := c.profiles.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn(ctx, "Profile cache read failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}

	profile, err := c.inner.FetchProfile(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.profiles.Set(&cache.Item{Ctx: ctx, Key: key, Value: profile}); err != nil {
		c.logger.Warn(ctx, "Profile cache write failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}
	return profile, nil
}

// FetchDailyHistory delegates uncached; history is fetched rarely and only
// for analysis requests.
func (c *CachedClient) FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	return c.inner.FetchDailyHistory(ctx, symbol, days)
}

// HealthCheck delegates uncached; a cached answer would defeat the probe.
func (c *CachedClient) HealthCheck(ctx context.Context) bool {
	return c.inner.HealthCheck(ctx)
}
