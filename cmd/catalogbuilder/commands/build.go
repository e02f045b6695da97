package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/open-filament/catalogbuilder/internal/build"
	"github.com/open-filament/catalogbuilder/internal/config"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Overrides
	Quiet bool `short:"q" help:"Do not print the run summary"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g.Logger)
	if err != nil {
		return err
	}
	if err := b.apply(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunBuild(ctx, g, cfg, b.Quiet)
}

// RunBuild executes a single build for cfg and prints its summary.
func RunBuild(ctx context.Context, g *Global, cfg *config.Config, quiet bool) error {
	rt, err := newRuntime(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	res, err := rt.run(ctx, "cli")
	if res != nil && !quiet {
		printResult(g.out(), res)
	}
	return err
}

func printResult(w io.Writer, res *build.Result) {
	rows := [][]string{
		{"Build", res.BuildID},
		{"Status", string(res.Status)},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
		{"Documents", strconv.Itoa(res.Documents)},
		{"Skipped documents", strconv.Itoa(len(res.Skipped))},
		{"Producers", strconv.Itoa(res.Catalog.Producers)},
		{"Materials", strconv.Itoa(res.Catalog.Materials)},
		{"Filaments", strconv.Itoa(res.Catalog.Filaments)},
		{"Identifiers minted", strconv.Itoa(res.IdentifiersMinted)},
	}
	if res.Report != nil {
		rows = append(rows,
			[]string{"Indexes written", strconv.Itoa(res.Report.IndexesWritten)},
			[]string{"Descriptors written", strconv.Itoa(res.Report.DescriptorsWritten)},
			[]string{"Descriptors changed", strconv.Itoa(res.Report.DescriptorsChanged)},
			[]string{"Renders", strconv.Itoa(res.Report.Rendered)},
		)
	}
	rows = append(rows, []string{"Leaf failures", strconv.Itoa(res.LeafFailures())})
	if res.Commit != "" {
		rows = append(rows, []string{"Source commit", res.Commit})
	}
	if res.CatalogSHA256 != "" {
		rows = append(rows, []string{"Catalog sha256", res.CatalogSHA256})
	}
	if res.ArchiveKey != "" {
		rows = append(rows, []string{"Archived as", res.ArchiveKey})
	}
	if res.FailedStage != "" {
		rows = append(rows, []string{"Failed stage", res.FailedStage})
	}
	_, _ = io.WriteString(w, renderTable(w, []string{"Field", "Value"}, rows, nil))

	if len(res.Skipped) > 0 {
		skipped := make([][]string, 0, len(res.Skipped))
		for _, s := range res.Skipped {
			skipped = append(skipped, []string{s.Path, s.Err.Error()})
		}
		_, _ = fmt.Fprintln(w)
		_, _ = io.WriteString(w, renderTable(w, []string{"Skipped document", "Reason"}, skipped, nil))
	}

	if res.Report != nil && len(res.Report.Issues) > 0 {
		issues := make([][]string, 0, len(res.Report.Issues))
		for _, is := range res.Report.Issues {
			issues = append(issues, []string{string(is.Severity), string(is.Code), is.Path, is.Message})
		}
		_, _ = fmt.Fprintln(w)
		_, _ = io.WriteString(w, renderTable(w, []string{"Severity", "Issue", "Path", "Message"}, issues, nil))
	}
}

func (g *Global) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}
