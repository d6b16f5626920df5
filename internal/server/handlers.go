package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/marketdata"
	"algoportfolio/internal/ports"
)

// tradeRequest is the body of buy and sell requests. Decimal fields accept
// JSON numbers and strings alike.
type tradeRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type positionResponse struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	CreatedAt time.Time       `json:"created_at"`
}

type holdingResponse struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	Price       decimal.Decimal `json:"price"`
	HasQuote    bool            `json:"has_quote"`
	MarketValue decimal.Decimal `json:"market_value"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	Unrealized  decimal.Decimal `json:"unrealized"`
}

type valuationResponse struct {
	Holdings          []holdingResponse `json:"holdings"`
	TotalValue        decimal.Decimal   `json:"total_value"`
	TotalCost         decimal.Decimal   `json:"total_cost"`
	TotalUnrealized   decimal.Decimal   `json:"total_unrealized"`
	TotalUnrealizedPc decimal.Decimal   `json:"total_unrealized_percent"`
}

type ledgerLineResponse struct {
	ID         int64           `json:"id"`
	Symbol     string          `json:"symbol"`
	Kind       string          `json:"kind"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalValue decimal.Decimal `json:"total_value"`
	Timestamp  time.Time       `json:"timestamp"`
}

type quoteResponse struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

type profileResponse struct {
	Symbol               string   `json:"symbol"`
	Name                 string   `json:"name"`
	Sector               string   `json:"sector,omitempty"`
	Industry             string   `json:"industry,omitempty"`
	Description          string   `json:"description,omitempty"`
	MarketCap            *float64 `json:"market_cap"`
	PERatio              *float64 `json:"pe_ratio"`
	EPS                  *float64 `json:"eps"`
	DividendYieldPercent *float64 `json:"dividend_yield_percent"`
	FiftyTwoWeekHigh     *float64 `json:"fifty_two_week_high"`
	FiftyTwoWeekLow      *float64 `json:"fifty_two_week_low"`
	AverageVolume        *float64 `json:"average_volume"`
}

type analysisResponse struct {
	Quote                *quoteResponse   `json:"quote"`
	Profile              *profileResponse `json:"profile,omitempty"`
	SMA50                *float64         `json:"sma_50"`
	SMA200               *float64         `json:"sma_200"`
	RSI14                *float64         `json:"rsi_14"`
	FiftyTwoWeekPosition *float64         `json:"fifty_two_week_position"`
}

func toPositionResponse(p *domain.Position) positionResponse {
	return positionResponse{
		ID:        p.ID,
		Symbol:    p.Symbol,
		Quantity:  p.Quantity,
		AvgCost:   p.AvgCost,
		CreatedAt: p.CreatedAt,
	}
}

func toQuoteResponse(q *domain.Quote) *quoteResponse {
	return &quoteResponse{
		Symbol:        q.Symbol,
		Price:         q.Price,
		PreviousClose: q.PreviousClose,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Currency:      q.Currency,
		Timestamp:     q.Timestamp,
	}
}

func toProfileResponse(p *domain.Profile) *profileResponse {
	return &profileResponse{
		Symbol:               p.Symbol,
		Name:                 p.Name,
		Sector:               p.Sector,
		Industry:             p.Industry,
		Description:          p.Description,
		MarketCap:            p.MarketCap,
		PERatio:              p.PERatio,
		EPS:                  p.EPS,
		DividendYieldPercent: p.DividendYieldPercent,
		FiftyTwoWeekHigh:     p.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:      p.FiftyTwoWeekLow,
		AverageVolume:        p.AverageVolume,
	}
}

// ownerID extracts and validates the owner id path parameter.
func ownerID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "ownerID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("owner id must be a positive integer")
	}
	return id, nil
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, err := s.service.RecordBuy(r.Context(), owner, req.Symbol, req.Quantity, req.Price)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toPositionResponse(pos))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, err := s.service.RecordSell(r.Context(), owner, req.Symbol, req.Quantity, req.Price)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	valuation, err := s.service.Valuation(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := valuationResponse{
		Holdings:          make([]holdingResponse, 0, len(valuation.Holdings)),
		TotalValue:        valuation.TotalValue,
		TotalCost:         valuation.TotalCost,
		TotalUnrealized:   valuation.TotalUnrealized,
		TotalUnrealizedPc: valuation.TotalUnrealizedPercent(),
	}
	for _, h := range valuation.Holdings {
		resp.Holdings = append(resp.Holdings, holdingResponse{
			Symbol:      h.Position.Symbol,
			Quantity:    h.Position.Quantity,
			AvgCost:     h.Position.AvgCost,
			Price:       h.Price,
			HasQuote:    h.HasQuote,
			MarketValue: h.MarketValue,
			CostBasis:   h.CostBasis,
			Unrealized:  h.Unrealized,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := s.service.ActivePositions(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		resp = append(resp, toPositionResponse(p))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	lines, err := s.service.Transactions(r.Context(), owner, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]ledgerLineResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, ledgerLineResponse{
			ID:         line.Entry.ID,
			Symbol:     line.Symbol,
			Kind:       string(line.Entry.Kind),
			Quantity:   line.Entry.Quantity,
			UnitPrice:  line.Entry.UnitPrice,
			TotalValue: line.Entry.TotalValue(),
			Timestamp:  line.Entry.Timestamp,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := s.service.ExportTransactionsCSV(r.Context(), owner, limit, w); err != nil {
		s.log.Error(r.Context(), err, "Transaction CSV export failed", map[string]interface{}{"ownerID": owner})
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := s.market.FetchQuote(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toQuoteResponse(quote))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	profile, err := s.market.FetchProfile(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	analysis, err := marketdata.Analyze(r.Context(), s.market, symbol, s.log)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := analysisResponse{
		Quote:                toQuoteResponse(analysis.Quote),
		SMA50:                analysis.SMA50,
		SMA200:               analysis.SMA200,
		RSI14:                analysis.RSI14,
		FiftyTwoWeekPosition: analysis.FiftyTwoWeekPosition,
	}
	if analysis.Profile != nil {
		resp.Profile = toProfileResponse(analysis.Profile)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK
	overall := "healthy"
	if err := s.db.Ping(r.Context()); err != nil {
		dbStatus = "error"
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	providerStatus := "ok"
	if !s.market.HealthCheck(r.Context()) {
		providerStatus = "degraded"
		if overall == "healthy" {
			overall = "degraded"
		}
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":   overall,
		"database": dbStatus,
		"provider": map[string]interface{}{
			"name":   s.market.Name(),
			"status": providerStatus,
		},
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"memory": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	})
}

// writeServiceError maps service and market data errors onto HTTP statuses.
// Unclassified errors stay opaque to the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var insErr *ports.InsufficientHoldingsError
	switch {
	case errors.As(err, &insErr):
		s.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     insErr.Error(),
			"symbol":    insErr.Symbol,
			"held":      insErr.Held,
			"requested": insErr.Requested,
		})
	case errors.Is(err, ports.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotHeld),
		errors.Is(err, ports.ErrSymbolNotFound),
		errors.Is(err, ports.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ports.ErrRateLimited):
		s.writeError(w, http.StatusServiceUnavailable, "market data provider is rate limiting requests")
	default:
		s.log.Error(r.Context(), err, "Request failed")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error(context.Background(), err, "Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
