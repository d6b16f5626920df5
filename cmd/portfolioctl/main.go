// Command portfolioctl manages a local portfolio database from the terminal.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(subcommands.HelpCommand(), "")
	commander.Register(subcommands.FlagsCommand(), "")

	commander.Register(&buyCmd{}, "transactions")
	commander.Register(&sellCmd{}, "transactions")
	commander.Register(&historyCmd{}, "transactions")
	commander.Register(&exportCmd{}, "transactions")

	commander.Register(&positionsCmd{}, "portfolio")

	commander.Register(&quoteCmd{}, "market data")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
