package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/open-filament/catalogbuilder/cmd/catalogbuilder/commands"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("catalogbuilder"),
		kong.Description("Merge filament source documents into a persistent catalog and generate its content tree."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := &commands.Global{Logger: slog.Default(), Out: os.Stdout}
	err := parser.Run(global, cli)
	os.Exit(ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(err))
}
