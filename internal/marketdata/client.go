package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

	"github.com/jpillora/backoff"
)

const (
	defaultMaxAttempts     = 3
	defaultBaseDelay       = 2 * time.Second
	defaultMaxDelay        = 30 * time.Second
	defaultAttemptTimeout  = 10 * time.Second
	defaultReferenceSymbol = "AAPL"
)

// Client wraps a quote provider with bounded retries. Only rate-limit
// responses are retried: a symbol the provider does not know stays unknown
// no matter how often it is asked, and unclassified failures are the
// caller's to handle. It implements ports.MarketData.
type Client struct {
	provider        ports.QuoteProvider
	logger          ports.Logger
	maxAttempts     int
	baseDelay       time.Duration
	maxDelay        time.Duration
	attemptTimeout  time.Duration
	disableJitter   bool
	referenceSymbol string

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds configuration for the resilient market data client.
type Config struct {
	Provider        ports.QuoteProvider
	Logger          ports.Logger
	MaxAttempts     int           // Attempts per call including the first, defaults to 3
	BaseDelay       time.Duration // First backoff delay, defaults to 2s
	MaxDelay        time.Duration // Backoff ceiling, defaults to 30s
	AttemptTimeout  time.Duration // Per-attempt deadline covering connect and read, defaults to 10s
	DisableJitter   bool          // Deterministic delays, for tests
	ReferenceSymbol string        // Known-good symbol probed by HealthCheck, defaults to AAPL
}

// NewClient creates a resilient market data client around a provider.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required for market data client")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for market data client")
	}

	c := &Client{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		maxAttempts:     cfg.MaxAttempts,
		baseDelay:       cfg.BaseDelay,
		maxDelay:        cfg.MaxDelay,
		attemptTimeout:  cfg.AttemptTimeout,
		disableJitter:   cfg.DisableJitter,
		referenceSymbol: cfg.ReferenceSymbol,
		sleep:           sleepContext,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.maxDelay <= 0 {
		c.maxDelay = defaultMaxDelay
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = defaultAttemptTimeout
	}
	if c.referenceSymbol == "" {
		c.referenceSymbol = defaultReferenceSymbol
	}
	return c, nil
}

// Name identifies the underlying provider.
func (c *Client) Name() string { return c.provider.Name() }

// FetchQuote retrieves the current quote for a symbol, retrying rate-limited
// attempts with exponential backoff.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	var quote *domain.Quote
	err := c.withRetry(ctx, "FetchQuote", symbol, func(ctx context.Context) error {
		q, err := c.provider.FetchQuote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// FetchProfile retrieves listing and fundamental data for a symbol, retrying
// rate-limited attempts with exponential backoff.
func (c *Client) FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error) {
	var profile *domain.Profile
	err := c.withRetry(ctx, "FetchProfile", symbol, func(ctx context.Context) error {
		p, err := c.provider.FetchProfile(ctx, symbol)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// FetchDailyHistory retrieves up to days daily closes, oldest first, retrying
// rate-limited attempts with exponential backoff.
func (c *Client) FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	err := c.withRetry(ctx, "FetchDailyHistory", symbol, func(ctx context.Context) error {
		p, err := c.provider.FetchDailyHistory(ctx, symbol, days)
		if err != nil {
			return err
		}
		points = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// HealthCheck probes the provider with the reference symbol. Every failure
// reads as unhealthy; nothing propagates to the caller.
func (c *Client) HealthCheck(ctx context.Context) bool {
	quote, err := c.FetchQuote(ctx, c.referenceSymbol)
	if err != nil {
		c.logger.Warn(ctx, "Provider health check failed", map[string]interface{}{
			"provider": c.provider.Name(),
			"symbol":   c.referenceSymbol,
			"error":    err.Error(),
		})
		return false
	}
	return quote.Price > 0
}

// withRetry runs call in a bounded attempt loop. Each attempt gets its own
// deadline so a hung provider call cannot stall the caller past the retry
// budget. Between rate-limited attempts the delay grows as
// baseDelay * 2^attempt plus jitter, capped at maxDelay.
func (c *Client) withRetry(ctx context.Context, op, symbol string, call func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    c.baseDelay,
		Max:    c.maxDelay,
		Factor: 2,
		Jitter: !c.disableJitter,
	}

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		err := call(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		// Terminal outcomes propagate untouched; only throttling earns
		// another attempt, and only while attempts remain.
		if !errors.Is(err, ports.ErrRateLimited) {
			return err
		}
		if attempt >= c.maxAttempts {
			return fmt.Errorf("%s for %s still rate limited after %d attempts: %w", op, symbol, attempt, err)
		}

		delay := b.Duration()
		c.logger.Warn(ctx, "Provider rate limited, backing off", map[string]interface{}{
			"operation": op,
			"symbol":    symbol,
			"attempt":   attempt,
			"delay":     delay.String(),
		})
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s for %s abandoned during backoff: %w", op, symbol, err)
		}
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
