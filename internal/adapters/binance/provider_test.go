package binance

import (
	"context"
	"fmt"
	"testing"

	"algoportfolio/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestHandleError_Classification(t *testing.T) {
	p, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{
			name:     "too many requests maps to rate limited",
			err:      &common.APIError{Code: -1003, Message: "Too many requests queued."},
			sentinel: ports.ErrRateLimited,
		},
		{
			name:     "invalid symbol code maps to not found",
			err:      &common.APIError{Code: -1121, Message: "Invalid symbol."},
			sentinel: ports.ErrSymbolNotFound,
		},
		{
			name:     "invalid symbol message maps to not found",
			err:      &common.APIError{Code: -1100, Message: "Invalid symbol in request"},
			sentinel: ports.ErrSymbolNotFound,
		},
		{
			name:     "other API errors map to fetch failed",
			err:      &common.APIError{Code: -1000, Message: "An unknown error occurred"},
			sentinel: ports.ErrFetchFailed,
		},
		{
			name:     "transport errors map to fetch failed",
			err:      fmt.Errorf("connection refused"),
			sentinel: ports.ErrFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.handleError(ctx, tt.err, "FetchQuote", "BTCUSDT")
			assert.ErrorIs(t, got, tt.sentinel)
		})
	}

	assert.NoError(t, p.handleError(ctx, nil, "FetchQuote", "BTCUSDT"))

	canceled := p.handleError(ctx, context.Canceled, "FetchQuote", "BTCUSDT")
	assert.ErrorIs(t, canceled, context.Canceled)
	assert.NotErrorIs(t, canceled, ports.ErrFetchFailed)
}

func TestQuoteCurrency(t *testing.T) {
	tests := []struct {
		symbol   string
		expected string
	}{
		{"BTCUSDT", "USD"},
		{"ETHBUSD", "USD"},
		{"SOLUSDC", "USD"},
		{"BTCEUR", "EUR"},
		{"ETHBTC", "BTC"},
		{"XRPBNB", "BNB"},
		{"USDT", "USD"}, // bare quote asset is not a pair
		{"UNKNOWN", "USD"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, quoteCurrency(tt.symbol), "symbol %s", tt.symbol)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "BTC/USDT", displayName("BTCUSDT"))
	assert.Equal(t, "ETH/BTC", displayName("ETHBTC"))
	assert.Equal(t, "WEIRD", displayName("WEIRD"))
}
