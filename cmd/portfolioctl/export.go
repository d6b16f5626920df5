package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type exportCmd struct {
	limit int
	out   string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export ledger entries as CSV" }
func (*exportCmd) Usage() string {
	return `portfolioctl export [-limit <n>] [-o <file>]

  Writes recent transactions as CSV to stdout or to the given file.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 0, "Number of entries to export, 0 for the default.")
	f.StringVar(&c.out, "o", "", "Output file. Defaults to stdout.")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, closeFn, err := openService()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	out := os.Stdout
	if c.out != "" {
		out, err = os.Create(c.out)
		if err != nil {
			fail(err)
			return subcommands.ExitFailure
		}
		defer out.Close()
	}

	if err := svc.ExportTransactionsCSV(ctx, *owner, c.limit, out); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	if c.out != "" {
		fmt.Printf("Exported transactions to %s\n", c.out)
	}
	return subcommands.ExitSuccess
}
