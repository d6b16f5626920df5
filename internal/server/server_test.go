package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"algoportfolio/internal/adapters/sqlite"
	"algoportfolio/internal/app"
	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

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

// fakeMarket serves canned prices; unknown symbols fail with a not-found.
type fakeMarket struct {
	prices  map[string]float64
	healthy bool
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s: %w", symbol, ports.ErrSymbolNotFound)
	}
	return &domain.Quote{Symbol: symbol, Price: price, Currency: "USD"}, nil
}

func (f *fakeMarket) FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error) {
	if _, ok := f.prices[symbol]; !ok {
		return nil, fmt.Errorf("no profile for %s: %w", symbol, ports.ErrSymbolNotFound)
	}
	return &domain.Profile{Symbol: symbol, Name: "Test Corp"}, nil
}

func (f *fakeMarket) FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	return nil, fmt.Errorf("no history: %w", ports.ErrFetchFailed)
}

func (f *fakeMarket) HealthCheck(ctx context.Context) bool { return f.healthy }

// setupServer wires a server over a temp-dir store and the given market.
func setupServer(t *testing.T, market *fakeMarket) (*Server, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "portfolio-server-test-*")
	require.NoError(t, err)

	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	svc, err := app.NewPortfolioService(app.Config{
		Store:  store,
		Market: market,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	srv, err := New(Config{
		Port:    0,
		Service: svc,
		Market:  market,
		DB:      store,
		Logger:  &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return srv, cleanup
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_BuyAndPositions(t *testing.T) {
	srv, cleanup := setupServer(t, &fakeMarket{healthy: true})
	defer cleanup()

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy",
		`{"symbol":"aapl","quantity":"10","price":"150.50"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var pos struct {
		Symbol   string `json:"symbol"`
		Quantity string `json:"quantity"`
		AvgCost  string `json:"avg_cost"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.Equal(t, "10", pos.Quantity)
	assert.Equal(t, "150.5", pos.AvgCost)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolio/1/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var positions []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	assert.Len(t, positions, 1)
}

func TestServer_BuyValidation(t *testing.T) {
	srv, cleanup := setupServer(t, &fakeMarket{healthy: true})
	defer cleanup()

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy",
		`{"symbol":"A1PL","quantity":"10","price":"150"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/portfolio/abc/buy",
		`{"symbol":"AAPL","quantity":"10","price":"150"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-numeric owner id")
}

func TestServer_SellOutcomes(t *testing.T) {
	srv, cleanup := setupServer(t, &fakeMarket{healthy: true})
	defer cleanup()

	// Nothing held yet.
	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/1/sell",
		`{"symbol":"AAPL","quantity":"1","price":"100"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy",
		`{"symbol":"AAPL","quantity":"5","price":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Oversell reports the held quantity.
	rec = doJSON(t, srv, http.MethodPost, "/api/portfolio/1/sell",
		`{"symbol":"AAPL","quantity":"8","price":"110"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		Held      string `json:"held"`
		Requested string `json:"requested"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "5", conflict.Held)
	assert.Equal(t, "8", conflict.Requested)

	// Valid partial sell.
	rec = doJSON(t, srv, http.MethodPost, "/api/portfolio/1/sell",
		`{"symbol":"AAPL","quantity":"2","price":"110"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var pos struct {
		Quantity string `json:"quantity"`
		AvgCost  string `json:"avg_cost"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, "3", pos.Quantity)
	assert.Equal(t, "100", pos.AvgCost)
}

func TestServer_ValuationFallsBack(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"AAPL": 200}, healthy: true}
	srv, cleanup := setupServer(t, market)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy",
		`{"symbol":"AAPL","quantity":"10","price":"150"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy",
		`{"symbol":"MSFT","quantity":"2","price":"300"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolio/1/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var valuation struct {
		Holdings []struct {
			Symbol   string `json:"symbol"`
			HasQuote bool   `json:"has_quote"`
			Price    string `json:"price"`
		} `json:"holdings"`
		TotalValue string `json:"total_value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &valuation))
	require.Len(t, valuation.Holdings, 2)
	assert.True(t, valuation.Holdings[0].HasQuote)
	assert.Equal(t, "200", valuation.Holdings[0].Price)
	assert.False(t, valuation.Holdings[1].HasQuote, "MSFT has no quote and falls back to cost")
	assert.Equal(t, "300", valuation.Holdings[1].Price)
	assert.Equal(t, "2600", valuation.TotalValue)
}

func TestServer_HistoryAndCSV(t *testing.T) {
	srv, cleanup := setupServer(t, &fakeMarket{healthy: true})
	defer cleanup()

	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/1/buy",
			`{"symbol":"AAPL","quantity":"1","price":"100"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/portfolio/1/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lines []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	assert.Len(t, lines, 2)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolio/1/history.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	rows := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, rows, 4, "header plus three entries")
}

func TestServer_QuoteEndpoints(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"AAPL": 187.5}, healthy: true}
	srv, cleanup := setupServer(t, market)
	defer cleanup()

	rec := doJSON(t, srv, http.MethodGet, "/api/quotes/AAPL/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 187.5, quote.Price)

	rec = doJSON(t, srv, http.MethodGet, "/api/quotes/NOPE/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown symbol maps to 404")

	rec = doJSON(t, srv, http.MethodGet, "/api/quotes/AAPL/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Analysis degrades without history instead of failing.
	rec = doJSON(t, srv, http.MethodGet, "/api/quotes/AAPL/analysis", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis struct {
		Quote *struct {
			Symbol string `json:"symbol"`
		} `json:"quote"`
		SMA50 *float64 `json:"sma_50"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	require.NotNil(t, analysis.Quote)
	assert.Nil(t, analysis.SMA50)
}

func TestServer_Health(t *testing.T) {
	srv, cleanup := setupServer(t, &fakeMarket{healthy: true})
	defer cleanup()

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Database)

	// A failing provider degrades the report without taking the API down.
	srvDegraded, cleanup2 := setupServer(t, &fakeMarket{healthy: false})
	defer cleanup2()
	rec = doJSON(t, srvDegraded, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
}

func TestServer_SystemStatus(t *testing.T) {
	srv, cleanup := setupServer(t, &fakeMarket{healthy: true})
	defer cleanup()

	rec := doJSON(t, srv, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Status     string `json:"status"`
		Goroutines int    `json:"goroutines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Greater(t, status.Goroutines, 0)
}
