package commands

import (
	"fmt"

	"github.com/open-filament/catalogbuilder/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool   `help:"Overwrite existing configuration file"`
	Path  string `arg:"" optional:"" help:"Where to write the configuration (default: --config or ./catalogbuilder.yaml)" type:"path"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := i.Path
	if path == "" {
		path = root.Config
	}
	if path == "" {
		path = config.DefaultPath
	}
	return RunInit(g, path, i.Force)
}

func RunInit(g *Global, path string, force bool) error {
	w := g.out()
	_, _ = fmt.Fprintf(w, "Writing configuration to %s\n", path)
	if err := config.Init(path, force); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "initialized successfully")
	return nil
}
