package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/marketdata"
	"algoportfolio/internal/ports"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Browser-like headers; the query API rejects default Go user agents.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Provider fetches quotes, profiles and daily history from the Yahoo Finance
// query API. It implements ports.QuoteProvider.
type Provider struct {
	baseURL string
	client  *http.Client
	logger  ports.Logger
}

// Config holds configuration for the Yahoo provider.
type Config struct {
	BaseURL string        // Override for tests; defaults to the public query API
	Timeout time.Duration // HTTP client timeout, defaults to 30s
	Logger  ports.Logger
}

// New creates a Yahoo Finance provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Yahoo provider")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}, nil
}

// Name identifies the provider in logs and health output.
func (p *Provider) Name() string { return "yahoo" }

// quoteResponse represents the envelope of the v7 quote API.
type quoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

// FetchQuote retrieves the current quote for a symbol.
//
// Field resolution follows the upstream payload quirks: price is
// currentPrice, falling back to regularMarketPrice; previous close is
// previousClose, falling back to regularMarketPreviousClose. When no previous
// close is present the day change and change percent are reported as zero
// rather than guessed.
func (p *Provider) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	info, err := p.getQuoteInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}

	price := firstPositive(info, "currentPrice", "regularMarketPrice")
	if price == nil {
		return nil, fmt.Errorf("no price data for symbol %s: %w", symbol, ports.ErrFetchFailed)
	}

	quote := &domain.Quote{
		Symbol:    getString(info, "symbol", symbol),
		Price:     *price,
		Currency:  getString(info, "currency", "USD"),
		Timestamp: time.Now().UTC(),
	}

	if prev := firstPositive(info, "previousClose", "regularMarketPreviousClose"); prev != nil {
		quote.PreviousClose = *prev
		quote.Change = quote.Price - *prev
		quote.ChangePercent = quote.Change / *prev * 100
	}

	if vol := getInt64(info, "volume"); vol != nil {
		quote.Volume = *vol
	} else if vol := getInt64(info, "regularMarketVolume"); vol != nil {
		quote.Volume = *vol
	}

	p.logger.Debug(ctx, "Fetched quote", map[string]interface{}{"symbol": quote.Symbol, "price": quote.Price})
	return quote, nil
}

// FetchProfile retrieves listing and fundamental data for a symbol. Fields
// the payload omits stay nil; the dividend yield is normalized to a percent
// before it leaves the provider.
func (p *Provider) FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error) {
	info, err := p.getQuoteInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}

	name := getString(info, "longName", "")
	if name == "" {
		name = getString(info, "shortName", symbol)
	}

	profile := &domain.Profile{
		Symbol:           getString(info, "symbol", symbol),
		Name:             name,
		Sector:           getString(info, "sector", ""),
		Industry:         getString(info, "industry", ""),
		Description:      getString(info, "longBusinessSummary", ""),
		MarketCap:        getFloat64(info, "marketCap"),
		EPS:              getFloat64(info, "trailingEps"),
		FiftyTwoWeekHigh: getFloat64(info, "fiftyTwoWeekHigh"),
		FiftyTwoWeekLow:  getFloat64(info, "fiftyTwoWeekLow"),
		AverageVolume:    getFloat64(info, "averageVolume"),
	}

	if pe := getFloat64(info, "trailingPE"); pe != nil {
		profile.PERatio = pe
	} else {
		profile.PERatio = getFloat64(info, "forwardPE")
	}

	if dy := getFloat64(info, "dividendYield"); dy != nil {
		normalized := marketdata.NormalizeDividendYield(*dy)
		profile.DividendYieldPercent = &normalized
	}

	return profile, nil
}

// getQuoteInfo fetches the attribute bag for one symbol from the v7 quote API.
func (p *Provider) getQuoteInfo(ctx context.Context, symbol string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,currency,currentPrice,regularMarketPrice,previousClose,"+
		"regularMarketPreviousClose,volume,regularMarketVolume,longName,shortName,sector,"+
		"industry,marketCap,trailingPE,forwardPE,trailingEps,dividendYield,fiftyTwoWeekHigh,"+
		"fiftyTwoWeekLow,averageVolume,longBusinessSummary")

	body, err := p.doGet(ctx, p.baseURL+"/v7/finance/quote?"+params.Encode(), symbol)
	if err != nil {
		return nil, err
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse quote response for %s: %w: %w", symbol, ports.ErrFetchFailed, err)
	}

	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote API error for %s (%v): %w", symbol, result.QuoteResponse.Error, ports.ErrFetchFailed)
	}

	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data returned for %s: %w", symbol, ports.ErrSymbolNotFound)
	}

	info := result.QuoteResponse.Result[0]
	// A payload that cannot identify its own symbol is treated as unknown.
	if getString(info, "symbol", "") == "" {
		return nil, fmt.Errorf("payload for %s carries no symbol field: %w", symbol, ports.ErrSymbolNotFound)
	}
	return info, nil
}

// chartResponse represents the envelope of the v8 chart API.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDailyHistory retrieves up to days daily closes, oldest first.
func (p *Provider) FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", rangeForDays(days))

	reqURL := p.baseURL + "/v8/finance/chart/" + url.QueryEscape(symbol) + "?" + params.Encode()
	body, err := p.doGet(ctx, reqURL, symbol)
	if err != nil {
		return nil, err
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse chart response for %s: %w: %w", symbol, ports.ErrFetchFailed, err)
	}

	if apiErr := result.Chart.Error; apiErr != nil {
		if apiErr.Code == "Not Found" {
			return nil, fmt.Errorf("no chart data for %s (%s): %w", symbol, apiErr.Description, ports.ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("chart API error for %s (%s: %s): %w", symbol, apiErr.Code, apiErr.Description, ports.ErrFetchFailed)
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("empty chart data for %s: %w", symbol, ports.ErrFetchFailed)
	}

	chart := result.Chart.Result[0]
	closes := chart.Indicators.Quote[0].Close

	points := make([]domain.PricePoint, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		// The API pads holidays with zero closes; skip them.
		if i >= len(closes) || closes[i] == 0 {
			continue
		}
		points = append(points, domain.PricePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Close: closes[i],
		})
	}
	if days > 0 && len(points) > days {
		points = points[len(points)-days:]
	}

	p.logger.Debug(ctx, "Fetched daily history", map[string]interface{}{"symbol": symbol, "points": len(points)})
	return points, nil
}

// doGet executes one GET against the query API and classifies HTTP-level
// failures: 429 responses (and bodies complaining about request volume) map
// to ErrRateLimited, everything else non-OK to ErrFetchFailed.
func (p *Provider) doGet(ctx context.Context, reqURL, symbol string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w: %w", symbol, ports.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w: %w", symbol, ports.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body for %s: %w: %w", symbol, ports.ErrFetchFailed, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(string(body)), "too many requests") {
		return nil, fmt.Errorf("market data API throttled request for %s: %w", symbol, ports.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data API returned status %d for %s: %w", resp.StatusCode, symbol, ports.ErrFetchFailed)
	}
	return body, nil
}

// rangeForDays picks the smallest chart range covering the requested days.
func rangeForDays(days int) string {
	switch {
	case days <= 0:
		return "1y"
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 186:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

// Helper functions to safely extract values from the attribute bag.

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

// firstPositive returns the first key whose value is present and positive.
func firstPositive(m map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		if v := getFloat64(m, key); v != nil && *v > 0 {
			return v
		}
	}
	return nil
}

func getInt64(m map[string]interface{}, key string) *int64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			i := int64(v)
			return &i
		case int:
			i := int64(v)
			return &i
		case int64:
			return &v
		}
	}
	return nil
}

func getString(m map[string]interface{}, key string, defaultVal string) string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}
