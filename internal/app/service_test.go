package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"algoportfolio/internal/adapters/sqlite"
	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

	"github.com/shopspring/decimal"
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

// fakeMarket implements ports.MarketData with per-symbol canned prices.
// Symbols missing from the map fail their quote fetch.
type fakeMarket struct {
	prices map[string]float64
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s: %w", symbol, ports.ErrFetchFailed)
	}
	return &domain.Quote{Symbol: symbol, Price: price, Currency: "USD"}, nil
}

func (f *fakeMarket) FetchProfile(ctx context.Context, symbol string) (*domain.Profile, error) {
	return &domain.Profile{Symbol: symbol}, nil
}

func (f *fakeMarket) FetchDailyHistory(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	return nil, nil
}

func (f *fakeMarket) HealthCheck(ctx context.Context) bool { return true }

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// setupService builds a service over a temp-dir SQLite store.
func setupService(t *testing.T, cfg Config) (*PortfolioService, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "portfolio-svc-test-*")
	require.NoError(t, err)

	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cfg.Store = store
	if cfg.Market == nil {
		cfg.Market = &fakeMarket{}
	}
	cfg.Logger = &mockLogger{}

	svc, err := NewPortfolioService(cfg)
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return svc, cleanup
}

func TestRecordBuy_FirstBuyCreatesAccountAndPosition(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	pos, err := svc.RecordBuy(ctx, 42, "aapl", dec(t, "10"), dec(t, "150.50"))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", pos.Symbol, "symbol must be canonicalized upper-case")
	assert.True(t, pos.Quantity.Equal(dec(t, "10")))
	assert.True(t, pos.AvgCost.Equal(dec(t, "150.50")))
	assert.NotZero(t, pos.ID)

	active, err := svc.ActivePositions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "AAPL", active[0].Symbol)
}

func TestRecordBuy_WeightedAverageCost(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "10"), dec(t, "100"))
	require.NoError(t, err)
	pos, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "10"), dec(t, "200"))
	require.NoError(t, err)

	assert.True(t, pos.Quantity.Equal(dec(t, "20")), "quantity = %s", pos.Quantity)
	assert.True(t, pos.AvgCost.Equal(dec(t, "150")), "avg cost = %s", pos.AvgCost)
}

func TestRecordBuy_SumOfBuysAndExactWeightedAverage(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	// Fractional lots whose weighted average would drift under binary floats.
	buys := []struct{ qty, price string }{
		{"0.1", "0.3"},
		{"0.2", "0.3"},
		{"1.7", "0.1"},
	}
	var pos *domain.Position
	var err error
	for _, b := range buys {
		pos, err = svc.RecordBuy(ctx, 1, "VT", dec(t, b.qty), dec(t, b.price))
		require.NoError(t, err)
	}

	assert.True(t, pos.Quantity.Equal(dec(t, "2")), "quantity = %s", pos.Quantity)
	// (0.1*0.3 + 0.2*0.3 + 1.7*0.1) / 2 = 0.13 exactly
	assert.True(t, pos.AvgCost.Equal(dec(t, "0.13")), "avg cost = %s", pos.AvgCost)
}

func TestRecordSell_ScenarioFullLifecycle(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, 7, "AAPL", dec(t, "10"), dec(t, "100"))
	require.NoError(t, err)
	pos, err := svc.RecordBuy(ctx, 7, "AAPL", dec(t, "10"), dec(t, "200"))
	require.NoError(t, err)
	require.True(t, pos.Quantity.Equal(dec(t, "20")))
	require.True(t, pos.AvgCost.Equal(dec(t, "150")))

	// Partial sell: quantity drops, average cost must not move.
	pos, err = svc.RecordSell(ctx, 7, "AAPL", dec(t, "5"), dec(t, "180"))
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(dec(t, "15")), "quantity = %s", pos.Quantity)
	assert.True(t, pos.AvgCost.Equal(dec(t, "150")), "avg cost must not change on sell")

	// Full close: position retained at zero, excluded from active holdings.
	pos, err = svc.RecordSell(ctx, 7, "AAPL", dec(t, "15"), dec(t, "190"))
	require.NoError(t, err)
	assert.True(t, pos.Quantity.IsZero(), "quantity = %s", pos.Quantity)

	active, err := svc.ActivePositions(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, active)

	// All four entries stay reachable, newest first.
	lines, err := svc.Transactions(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, domain.EntrySell, lines[0].Entry.Kind)
	assert.True(t, lines[0].Entry.Quantity.Equal(dec(t, "15")))
	assert.True(t, lines[0].Entry.UnitPrice.Equal(dec(t, "190")))
	assert.Equal(t, domain.EntrySell, lines[1].Entry.Kind)
	assert.True(t, lines[1].Entry.Quantity.Equal(dec(t, "5")))
	assert.True(t, lines[1].Entry.UnitPrice.Equal(dec(t, "180")))
	assert.Equal(t, domain.EntryBuy, lines[2].Entry.Kind)
	assert.True(t, lines[2].Entry.UnitPrice.Equal(dec(t, "200")))
	assert.Equal(t, domain.EntryBuy, lines[3].Entry.Kind)
	assert.True(t, lines[3].Entry.UnitPrice.Equal(dec(t, "100")))
}

func TestRecordSell_InsufficientHoldings(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "5"), dec(t, "100"))
	require.NoError(t, err)

	_, err = svc.RecordSell(ctx, 1, "AAPL", dec(t, "8"), dec(t, "110"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientHoldings)

	var insErr *ports.InsufficientHoldingsError
	require.ErrorAs(t, err, &insErr)
	assert.True(t, insErr.Held.Equal(dec(t, "5")), "error must report the held quantity")
	assert.True(t, insErr.Requested.Equal(dec(t, "8")))

	// Nothing was mutated: quantity intact, no SELL entry appended.
	active, err := svc.ActivePositions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Quantity.Equal(dec(t, "5")))

	lines, err := svc.Transactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestRecordSell_NotHeld(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	// No account at all.
	_, err := svc.RecordSell(ctx, 99, "AAPL", dec(t, "1"), dec(t, "100"))
	assert.ErrorIs(t, err, ports.ErrNotHeld)

	// Account exists but the symbol was never bought.
	_, err = svc.RecordBuy(ctx, 1, "AAPL", dec(t, "5"), dec(t, "100"))
	require.NoError(t, err)
	_, err = svc.RecordSell(ctx, 1, "MSFT", dec(t, "1"), dec(t, "100"))
	assert.ErrorIs(t, err, ports.ErrNotHeld)

	// A position sold down to zero reads as not held, not as insufficient.
	_, err = svc.RecordSell(ctx, 1, "AAPL", dec(t, "5"), dec(t, "100"))
	require.NoError(t, err)
	_, err = svc.RecordSell(ctx, 1, "AAPL", dec(t, "1"), dec(t, "100"))
	assert.ErrorIs(t, err, ports.ErrNotHeld)
	assert.NotErrorIs(t, err, ports.ErrInsufficientHoldings)
}

func TestValidation_RejectedBeforeStoreAccess(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name   string
		symbol string
		qty    string
		price  string
	}{
		{name: "empty symbol", symbol: "", qty: "1", price: "100"},
		{name: "blank symbol", symbol: "   ", qty: "1", price: "100"},
		{name: "numeric symbol", symbol: "A1PL", qty: "1", price: "100"},
		{name: "symbol too long", symbol: "ABCDEFGHIJK", qty: "1", price: "100"},
		{name: "zero quantity", symbol: "AAPL", qty: "0", price: "100"},
		{name: "negative quantity", symbol: "AAPL", qty: "-1", price: "100"},
		{name: "zero price", symbol: "AAPL", qty: "1", price: "0"},
		{name: "negative price", symbol: "AAPL", qty: "1", price: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordBuy(ctx, 1, tt.symbol, dec(t, tt.qty), dec(t, tt.price))
			assert.ErrorIs(t, err, ports.ErrValidation)
			_, err = svc.RecordSell(ctx, 1, tt.symbol, dec(t, tt.qty), dec(t, tt.price))
			assert.ErrorIs(t, err, ports.ErrValidation)
		})
	}

	// No account was created as a side effect of any rejected request.
	active, err := svc.ActivePositions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTransactions_LimitRules(t *testing.T) {
	svc, cleanup := setupService(t, Config{HistoryDefaultLimit: 3, HistoryMaxLimit: 5})
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "1"), dec(t, "100"))
		require.NoError(t, err)
	}

	lines, err := svc.Transactions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, lines, 3, "non-positive limit falls back to the default")

	lines, err = svc.Transactions(ctx, 1, 4)
	require.NoError(t, err)
	assert.Len(t, lines, 4)

	lines, err = svc.Transactions(ctx, 1, 100)
	require.NoError(t, err)
	assert.Len(t, lines, 5, "limit above the ceiling is clamped")

	// Unknown owner gets an empty history, not an error.
	lines, err = svc.Transactions(ctx, 404, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestValuation_FallsBackToCostBasisPerSymbol(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"AAPL": 180}}
	svc, cleanup := setupService(t, Config{Market: market})
	defer cleanup()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "10"), dec(t, "150"))
	require.NoError(t, err)
	_, err = svc.RecordBuy(ctx, 1, "MSFT", dec(t, "5"), dec(t, "300"))
	require.NoError(t, err)

	valuation, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, valuation.Holdings, 2)

	aapl := valuation.Holdings[0]
	assert.Equal(t, "AAPL", aapl.Position.Symbol)
	assert.True(t, aapl.HasQuote)
	assert.True(t, aapl.Price.Equal(dec(t, "180")))
	assert.True(t, aapl.MarketValue.Equal(dec(t, "1800")))
	assert.True(t, aapl.Unrealized.Equal(dec(t, "300")))

	// MSFT has no quote: the holding degrades to cost basis, not the view.
	msft := valuation.Holdings[1]
	assert.Equal(t, "MSFT", msft.Position.Symbol)
	assert.False(t, msft.HasQuote)
	assert.True(t, msft.Price.Equal(dec(t, "300")))
	assert.True(t, msft.MarketValue.Equal(dec(t, "1500")))
	assert.True(t, msft.Unrealized.IsZero())

	assert.True(t, valuation.TotalValue.Equal(dec(t, "3300")))
	assert.True(t, valuation.TotalCost.Equal(dec(t, "3000")))
	assert.True(t, valuation.TotalUnrealized.Equal(dec(t, "300")))
	assert.True(t, valuation.TotalUnrealizedPercent().Equal(dec(t, "10")))
}

func TestValuation_EmptyForUnknownOwner(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()

	valuation, err := svc.Valuation(context.Background(), 404)
	require.NoError(t, err)
	assert.Empty(t, valuation.Holdings)
	assert.True(t, valuation.TotalValue.IsZero())
}

func TestRecordBuy_ConcurrentMutationsDoNotLoseWrites(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "1"), dec(t, "100"))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	active, err := svc.ActivePositions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Quantity.Equal(dec(t, "10")), "all %d buys must land, got %s", workers, active[0].Quantity)

	lines, err := svc.Transactions(ctx, 1, 50)
	require.NoError(t, err)
	assert.Len(t, lines, workers)
}

func TestExportTransactionsCSV(t *testing.T) {
	svc, cleanup := setupService(t, Config{})
	defer cleanup()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, 1, "AAPL", dec(t, "10"), dec(t, "150"))
	require.NoError(t, err)
	_, err = svc.RecordSell(ctx, 1, "AAPL", dec(t, "4"), dec(t, "180"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportTransactionsCSV(ctx, 1, 10, &buf))

	rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, rows, 3, "header plus two entries")
	assert.Equal(t, "timestamp,symbol,kind,quantity,unit_price,total_value", rows[0])
	assert.Contains(t, rows[1], "AAPL,SELL,4,180,720")
	assert.Contains(t, rows[2], "AAPL,BUY,10,150,1500")
}
