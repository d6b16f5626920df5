package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
)

type historyCmd struct {
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list recent ledger entries, newest first" }
func (*historyCmd) Usage() string {
	return `portfolioctl history [-limit <n>]

  Lists the account's most recent transactions.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 0, "Number of entries to show, 0 for the default.")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeFn, err := openService()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	lines, err := svc.Transactions(ctx, *owner, c.limit)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "WHEN\tSYMBOL\tKIND\tQUANTITY\tUNIT PRICE\tTOTAL")
	for _, line := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			line.Entry.Timestamp.Format(time.RFC3339), line.Symbol, line.Entry.Kind,
			line.Entry.Quantity, line.Entry.UnitPrice, line.Entry.TotalValue())
	}
	return subcommands.ExitSuccess
}
