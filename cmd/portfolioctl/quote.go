package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type quoteCmd struct {
	provider string
	profile  bool
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "fetch the current quote for a symbol" }
func (*quoteCmd) Usage() string {
	return `portfolioctl quote [-provider yahoo|binance] [-profile] <symbol>

  Fetches a quote, retrying with backoff when the provider rate limits.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provider, "provider", "yahoo", "Market data provider (yahoo or binance).")
	f.BoolVar(&c.profile, "profile", false, "Also fetch the instrument profile.")
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one symbol is required.")
		return subcommands.ExitUsageError
	}
	symbol := f.Arg(0)

	market, err := openMarket(c.provider)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	quote, err := market.FetchQuote(ctx, symbol)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol\t%s\n", quote.Symbol)
	fmt.Fprintf(w, "Price\t%.4f %s\n", quote.Price, quote.Currency)
	fmt.Fprintf(w, "Change\t%+.4f (%+.2f%%)\n", quote.Change, quote.ChangePercent)
	fmt.Fprintf(w, "Prev close\t%.4f\n", quote.PreviousClose)
	if quote.Volume > 0 {
		fmt.Fprintf(w, "Volume\t%d\n", quote.Volume)
	}
	w.Flush()

	if !c.profile {
		return subcommands.ExitSuccess
	}

	profile, err := market.FetchProfile(ctx, symbol)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	fmt.Println()
	fmt.Fprintf(w, "Name\t%s\n", profile.Name)
	if profile.Sector != "" {
		fmt.Fprintf(w, "Sector\t%s\n", profile.Sector)
	}
	if profile.Industry != "" {
		fmt.Fprintf(w, "Industry\t%s\n", profile.Industry)
	}
	if profile.DividendYieldPercent != nil {
		fmt.Fprintf(w, "Dividend yield\t%.2f%%\n", *profile.DividendYieldPercent)
	}
	if profile.PERatio != nil {
		fmt.Fprintf(w, "P/E\t%.2f\n", *profile.PERatio)
	}
	w.Flush()
	return subcommands.ExitSuccess
}
