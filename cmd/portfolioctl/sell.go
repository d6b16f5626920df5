package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"algoportfolio/internal/ports"
)

type sellCmd struct {
	symbol   string
	quantity string
	price    string
}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "record a sale in the ledger" }
func (*sellCmd) Usage() string {
	return `portfolioctl sell -symbol <symbol> -quantity <qty> -price <unit_price>

  Records a sale. Fails when the quantity exceeds the current holding.
`
}

func (c *sellCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Ticker symbol to sell.")
	f.StringVar(&c.quantity, "quantity", "", "Quantity of shares, decimals allowed.")
	f.StringVar(&c.price, "price", "", "Price received per share.")
}

func (c *sellCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	pos, err := svc.RecordSell(ctx, *owner, c.symbol, quantity, price)
	if err != nil {
		var insErr *ports.InsufficientHoldingsError
		if errors.As(err, &insErr) {
			fmt.Fprintf(os.Stderr, "Error: cannot sell %s %s, only %s held\n",
				insErr.Requested, insErr.Symbol, insErr.Held)
			return subcommands.ExitFailure
		}
		fail(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Sold %s %s @ %s, %s remaining at avg cost %s\n",
		quantity, pos.Symbol, price, pos.Quantity, pos.AvgCost)
	return subcommands.ExitSuccess
}
