package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type positionsCmd struct {
	value bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list active positions" }
func (*positionsCmd) Usage() string {
	return `portfolioctl positions [-value]

  Lists positions with a non-zero quantity. With -value, fetches current
  quotes and reports market value and unrealized P&L. Positions whose quote
  cannot be fetched are valued at cost.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.value, "value", false, "Fetch quotes and report market values.")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeFn, err := openService()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if c.value {
		valuation, err := svc.Valuation(ctx, *owner)
		if err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		fmt.Fprintln(w, "SYMBOL\tQUANTITY\tAVG COST\tPRICE\tMARKET VALUE\tUNREALIZED")
		for _, h := range valuation.Holdings {
			price := h.Price.String()
			if !h.HasQuote {
				price += "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				h.Position.Symbol, h.Position.Quantity, h.Position.AvgCost,
				price, h.MarketValue, h.Unrealized)
		}
		fmt.Fprintf(w, "TOTAL\t\t\t\t%s\t%s\n", valuation.TotalValue, valuation.TotalUnrealized)
		return subcommands.ExitSuccess
	}

	positions, err := svc.ActivePositions(ctx, *owner)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(w, "SYMBOL\tQUANTITY\tAVG COST\tCOST BASIS")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Symbol, p.Quantity, p.AvgCost, p.CostBasis())
	}
	return subcommands.ExitSuccess
}
