package commands

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/open-filament/catalogbuilder/internal/eventstore"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" help:"Number of runs to list" default:"20"`
	Build string `short:"b" help:"List the journal events of one build"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g.Logger)
	if err != nil {
		return err
	}
	path := cfg.History.Path
	if path == "" {
		return ferrors.ConfigError("run journal is disabled").
			WithContext("hint", "set history.path in the configuration").
			UserAction().
			Build()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ferrors.NotFoundError("run journal not found").WithContext("path", path).Build()
	}

	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if h.Build != "" {
		return printEvents(ctx, g.out(), store, h.Build)
	}
	projection := eventstore.NewRunHistoryProjection(store, h.Limit)
	if err := projection.Rebuild(ctx); err != nil {
		return err
	}
	printHistory(g.out(), projection.History())
	return nil
}

func printHistory(w io.Writer, runs []eventstore.RunSummary) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.BuildID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			r.Trigger,
			r.Duration.Round(time.Millisecond).String(),
			strconv.Itoa(r.Documents),
			strconv.Itoa(r.DocumentsSkipped),
			strconv.Itoa(r.Filaments),
			strconv.Itoa(r.IDsMinted),
			strconv.Itoa(r.LeafFailures),
			r.ErrorMessage,
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	_, _ = io.WriteString(w, renderTable(w,
		[]string{"Build", "Started", "Status", "Trigger", "Duration", "Docs", "Skipped", "Filaments", "Minted", "Failures", "Error"},
		rows, aligns))
}

func printEvents(ctx context.Context, w io.Writer, store eventstore.Store, buildID string) error {
	events, err := store.GetByBuildID(ctx, buildID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return ferrors.NotFoundError("no journal events for build").WithContext("build_id", buildID).Build()
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.Timestamp().Local().Format(time.DateTime),
			e.Type(),
			string(e.Payload()),
		})
	}
	_, _ = io.WriteString(w, renderTable(w, []string{"Time", "Event", "Payload"}, rows, nil))
	return nil
}
