package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"algoportfolio/config"
	"algoportfolio/internal/adapters/binance"
	"algoportfolio/internal/adapters/logger"
	"algoportfolio/internal/adapters/sqlite"
	"algoportfolio/internal/adapters/yahoo"
	"algoportfolio/internal/app"
	"algoportfolio/internal/marketdata"
	"algoportfolio/internal/ports"
	"algoportfolio/internal/scheduler"
	"algoportfolio/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database store")
		log.Fatalf("FATAL: Failed to initialize database store: %v", err) // Also log to stderr
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database store")
		}
	}()
	appLogger.Info(context.Background(), "Database store initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Initialize Quote Provider
	var provider ports.QuoteProvider
	switch cfg.QuoteProvider {
	case "binance":
		provider, err = binance.New(binance.Config{
			APIKey:    cfg.BinanceAPIKey,
			SecretKey: cfg.BinanceSecretKey,
			Logger:    appLogger,
		})
	default:
		provider, err = yahoo.New(yahoo.Config{Logger: appLogger})
	}
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize quote provider")
		log.Fatalf("FATAL: Failed to initialize quote provider: %v", err)
	}
	appLogger.Info(context.Background(), "Quote provider initialized", map[string]interface{}{"provider": provider.Name()})

	// 5. Initialize Market Data Client (retry/backoff, then caching)
	var market ports.MarketData
	market, err = marketdata.NewClient(marketdata.Config{
		Provider:        provider,
		Logger:          appLogger,
		MaxAttempts:     cfg.QuoteMaxRetries,
		BaseDelay:       cfg.QuoteBaseDelay,
		MaxDelay:        cfg.QuoteMaxDelay,
		AttemptTimeout:  cfg.QuoteTimeout,
		ReferenceSymbol: cfg.HealthSymbol,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data client")
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}
	if cfg.PriceCacheTTL > 0 {
		market, err = marketdata.NewCachedClient(marketdata.CacheConfig{
			Inner:      market,
			Logger:     appLogger,
			PriceTTL:   cfg.PriceCacheTTL,
			ProfileTTL: cfg.ProfileCacheTTL,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data cache")
			log.Fatalf("FATAL: Failed to initialize market data cache: %v", err)
		}
	}
	appLogger.Info(context.Background(), "Market data client initialized")

	// 6. Initialize Portfolio Service
	portfolioService, err := app.NewPortfolioService(app.Config{
		Store:               store,
		Market:              market,
		Logger:              appLogger,
		HistoryDefaultLimit: cfg.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.HistoryMaxLimit,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize portfolio service")
		log.Fatalf("FATAL: Failed to initialize portfolio service: %v", err)
	}
	appLogger.Info(context.Background(), "Portfolio service initialized")

	// 7. Start Background Jobs
	sched := scheduler.New(appLogger)
	if err := sched.AddJob(cfg.HealthSchedule, scheduler.NewProviderHealthJob(market, appLogger)); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to register health check job")
		log.Fatalf("FATAL: Failed to register health check job: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// 8. Start the HTTP Server
	srv, err := server.New(server.Config{
		Port:    cfg.HTTPPort,
		Service: portfolioService,
		Market:  market,
		DB:      store,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info(context.Background(), "HTTP server starting", map[string]interface{}{"port": cfg.HTTPPort})
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		appLogger.Error(context.Background(), err, "HTTP server exited with error")
		log.Fatalf("FATAL: HTTP server exited with error: %v", err)
	case sig := <-quit:
		appLogger.Info(context.Background(), "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	}

	// 10. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server shutdown failed")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
