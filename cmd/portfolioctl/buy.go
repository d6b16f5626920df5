package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type buyCmd struct {
	symbol   string
	quantity string
	price    string
}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "record a purchase in the ledger" }
func (*buyCmd) Usage() string {
	return `portfolioctl buy -symbol <symbol> -quantity <qty> -price <unit_price>

  Records a buy and updates the position's weighted-average cost.
`
}

func (c *buyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Ticker symbol to buy.")
	f.StringVar(&c.quantity, "quantity", "", "Quantity of shares, decimals allowed.")
	f.StringVar(&c.price, "price", "", "Price paid per share.")
}

func (c *buyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	quantity, price, ok := parseTradeFlags(c.symbol, c.quantity, c.price)
	if !ok {
		return subcommands.ExitUsageError
	}

	svc, closeFn, err := openService()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	pos, err := svc.RecordBuy(ctx, *owner, c.symbol, quantity, price)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Bought %s %s @ %s, now holding %s at avg cost %s\n",
		quantity, pos.Symbol, price, pos.Quantity, pos.AvgCost)
	return subcommands.ExitSuccess
}

// parseTradeFlags validates the shared buy/sell flag set.
func parseTradeFlags(symbol, quantityStr, priceStr string) (quantity, price decimal.Decimal, ok bool) {
	if symbol == "" || quantityStr == "" || priceStr == "" {
		fmt.Fprintln(os.Stderr, "Error: -symbol, -quantity and -price are required.")
		return decimal.Zero, decimal.Zero, false
	}
	quantity, err := decimal.NewFromString(quantityStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid quantity %q: %v\n", quantityStr, err)
		return decimal.Zero, decimal.Zero, false
	}
	price, err = decimal.NewFromString(priceStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid price %q: %v\n", priceStr, err)
		return decimal.Zero, decimal.Zero, false
	}
	return quantity, price, true
}
