package main

import (
	"flag"
	"fmt"
	"os"

	"algoportfolio/internal/adapters/binance"
	"algoportfolio/internal/adapters/sqlite"
	"algoportfolio/internal/adapters/yahoo"
	"algoportfolio/internal/app"
	"algoportfolio/internal/marketdata"
	"algoportfolio/internal/ports"
)

// As a CLI application it is short lived, so global flags are acceptable.
var dbPath = flag.String("db", "./data/portfolio.db", "Path to the portfolio SQLite database")
var owner = flag.Int64("owner", 1, "Owner id of the account to operate on")

// openMarket builds a resilient market data client over the named provider.
func openMarket(providerName string) (ports.MarketData, error) {
	var provider ports.QuoteProvider
	var err error
	switch providerName {
	case "yahoo":
		provider, err = yahoo.New(yahoo.Config{Logger: ports.Nop()})
	case "binance":
		provider, err = binance.New(binance.Config{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			SecretKey: os.Getenv("BINANCE_API_SECRET"),
			Logger:    ports.Nop(),
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q (expected yahoo or binance)", providerName)
	}
	if err != nil {
		return nil, err
	}
	return marketdata.NewClient(marketdata.Config{Provider: provider, Logger: ports.Nop()})
}

// openService builds a portfolio service over the local database. The
// returned close func releases the database.
func openService() (*app.PortfolioService, func(), error) {
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: *dbPath,
		Logger: ports.Nop(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database %q: %w", *dbPath, err)
	}

	market, err := openMarket("yahoo")
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	svc, err := app.NewPortfolioService(app.Config{
		Store:  store,
		Market: market,
		Logger: ports.Nop(),
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, func() { store.Close() }, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}
