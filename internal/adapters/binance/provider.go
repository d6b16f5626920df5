package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// quoteAssets are the pair suffixes Binance quotes against, longest first so
// USDT wins over USD when both match.
var quoteAssets = []string{"USDT", "BUSD", "USDC", "TUSD", "USD", "EUR", "GBP", "BTC", "ETH", "BNB"}

// Provider fetches quotes and daily history for crypto pairs from the
// Binance spot API. It implements ports.QuoteProvider. Fundamentals do not
// exist for crypto pairs, so profiles come back sparse.
type Provider struct {
	client *binance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance provider adapter.
type Config struct {
	APIKey    string // Optional; market data endpoints are public
	SecretKey string
	Logger    ports.Logger
}

// New creates a new Binance provider adapter.
func New(cfg Config) (*Provider, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance provider")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "Binance keys not set, using public market data endpoints only")
	}
	return &Provider{
		client: binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger: cfg.Logger,
	}, nil
}

// Name identifies the provider in logs and health output.
func (p *Provider) Name() string { return "binance" }

// handleError translates Binance API errors into standardized ports errors.
func (p *Provider) handleError(ctx context.Context, err error, operation, symbol string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "symbol": symbol, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch {
		case apiErr.Code == -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case apiErr.Code == -1121, strings.Contains(strings.ToLower(apiErr.Message), "invalid symbol"):
			mappedErr = ports.ErrSymbolNotFound
		default:
			mappedErr = ports.ErrFetchFailed
		}
		p.logger.Warn(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s for %s failed: %w: %w", operation, symbol, mappedErr, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s for %s canceled: %w", operation, symbol, err)
	}
	p.logger.Warn(ctx, fmt.Sprintf("%s failed", operation), fields)
	return fmt.Errorf("%s for %s failed: %w: %w", operation, symbol, ports.ErrFetchFailed, err)
}

// FetchQuote retrieves the 24h ticker statistics for a pair and translates
// them into a quote. The quote currency is derived from the pair's quote
// asset suffix.
func (p *Provider) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	op := "FetchQuote"
	stats, err := p.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, p.handleError(ctx, err, op, symbol)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%s: no ticker data for %s: %w", op, symbol, ports.ErrSymbolNotFound)
	}
	st := stats[0]

	price, err := strconv.ParseFloat(st.LastPrice, 64)
	if err != nil {
		return nil, p.handleError(ctx, fmt.Errorf("parse last price %q: %w", st.LastPrice, err), op, symbol)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%s: no price data for %s: %w", op, symbol, ports.ErrFetchFailed)
	}

	quote := &domain.Quote{
		Symbol:    st.Symbol,
		Price:     price,
		Currency:  quoteCurrency(st.Symbol),
		Timestamp: time.Now().UTC(),
	}
	if prev, err := strconv.ParseFloat(st.PrevClosePrice, 64); err == nil && prev > 0 {
		quote.PreviousClose = prev
	}
	if change, err := strconv.ParseFloat(st.PriceChange, 64); err == nil {
		quote.Change = change
	}
	if pct, err := strconv.ParseFloat(st.PriceChangePercent, 64); err == nil {
		quote.ChangePercent = pct
	}
	if vol, err := strconv.ParseFloat(st.Volume, 64); err == nil {
		quote.Volume = int64(vol)
	}

	p.logger.Debug(ctx, "Fetched quote", map[string]interface{}{"symbol": quote.Symbol, "price": quote.Price})
	return quote, nil
}

// FetchProfile returns a sparse profile for a pair: exchanges carry no
// fundamentals, so only the identifying fields are populated and the symbol
// is validated against the ticker endpoint.
func (p *Provider) FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error) {
	quote, err := p.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &domain.Profile{
		Symbol: quote.Symbol,
		Name:   displayName(quote.Symbol),
		Sector: "Cryptocurrency",
	}, nil
}

// FetchDailyHistory retrieves up to days daily closes, oldest first.
func (p *Provider) FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	op := "FetchDailyHistory"
	if days <= 0 {
		days = 365
	}
	klines, err := p.client.NewKlinesService().Symbol(symbol).Interval("1d").Limit(days).Do(ctx)
	if err != nil {
		return nil, p.handleError(ctx, err, op, symbol)
	}

	points := make([]domain.PricePoint, 0, len(klines))
	for _, k := range klines {
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, p.handleError(ctx, fmt.Errorf("parse close %q: %w", k.Close, err), op, symbol)
		}
		points = append(points, domain.PricePoint{
			Date:  time.UnixMilli(k.OpenTime).UTC(),
			Close: closePrice,
		})
	}
	p.logger.Debug(ctx, "Fetched daily history", map[string]interface{}{"symbol": symbol, "points": len(points)})
	return points, nil
}

// quoteCurrency derives the quote currency from the pair's quote asset
// suffix, defaulting to USD for unrecognized pairs. Stablecoin suffixes all
// read as USD for valuation purposes.
func quoteCurrency(symbol string) string {
	for _, asset := range quoteAssets {
		if len(symbol) > len(asset) && strings.HasSuffix(symbol, asset) {
			switch asset {
			case "USDT", "BUSD", "USDC", "TUSD", "USD":
				return "USD"
			default:
				return asset
			}
		}
	}
	return "USD"
}

// displayName renders a pair as "BASE/QUOTE" when the quote asset is
// recognizable, falling back to the raw symbol.
func displayName(symbol string) string {
	for _, asset := range quoteAssets {
		if len(symbol) > len(asset) && strings.HasSuffix(symbol, asset) {
			return symbol[:len(symbol)-len(asset)] + "/" + asset
		}
	}
	return symbol
}
