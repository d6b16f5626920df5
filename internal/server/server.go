package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"algoportfolio/internal/app"
	"algoportfolio/internal/ports"
)

// DBChecker reports store liveness for the health endpoint.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Port    int
	Service *app.PortfolioService
	Market  ports.MarketData
	DB      DBChecker
	Logger  ports.Logger
}

// Server is the HTTP API over the portfolio service and the market data
// client.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     ports.Logger
	service *app.PortfolioService
	market  ports.MarketData
	db      DBChecker
	started time.Time
}

// New creates a new HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil || cfg.Market == nil || cfg.DB == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP server")
	}

	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Logger,
		service: cfg.Service,
		market:  cfg.Market,
		db:      cfg.DB,
		started: time.Now().UTC(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolio/{ownerID}", func(r chi.Router) {
			r.Post("/buy", s.handleBuy)
			r.Post("/sell", s.handleSell)
			r.Get("/", s.handleValuation)
			r.Get("/positions", s.handlePositions)
			r.Get("/history", s.handleHistory)
			r.Get("/history.csv", s.handleHistoryCSV)
		})

		r.Route("/quotes/{symbol}", func(r chi.Router) {
			r.Get("/", s.handleQuote)
			r.Get("/profile", s.handleProfile)
			r.Get("/analysis", s.handleAnalysis)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.server.Addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info(r.Context(), "HTTP request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestID":  middleware.GetReqID(r.Context()),
		})
	})
}
