package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	"github.com/open-filament/catalogbuilder/internal/store"
)

// ShowCmd implements the 'show' command.
type ShowCmd struct {
	Catalog  string `help:"Catalog JSON file (default from configuration)" type:"path"`
	Producer string `short:"p" help:"Only show this producer"`
	Material string `short:"m" help:"Only show this material"`
}

func (s *ShowCmd) Run(g *Global, root *CLI) error {
	path := s.Catalog
	if path == "" {
		cfg, err := root.loadConfig(g.Logger)
		if err != nil {
			return err
		}
		path = cfg.Catalog.Path
	}
	producers, err := store.Load(path)
	if err != nil {
		return err
	}
	printCatalog(g.out(), producers, s.Producer, s.Material)
	return nil
}

func printCatalog(w io.Writer, producers []*catalog.Producer, producer, material string) {
	var rows [][]string
	catalog.Walk(producers, func(e catalog.Entry) bool {
		if producer != "" && e.Producer.Name != producer {
			return true
		}
		if material != "" && e.Material.Name != material {
			return true
		}
		id := e.Filament.ID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{
			e.Producer.Name,
			e.Material.Name,
			e.Filament.Name,
			id,
			strconv.Itoa(e.Filament.Data.Len()),
		})
		return true
	})
	_, _ = io.WriteString(w, renderTable(w, []string{"Producer", "Material", "Filament", "ID", "Attributes"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))

	stats := catalog.Count(producers...)
	_, _ = fmt.Fprintf(w, "%d producers, %d materials, %d filaments\n", stats.Producers, stats.Materials, stats.Filaments)
}
