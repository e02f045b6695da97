package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/store"
)

const prusamentDoc = `producer:
  name: Prusament
  materials:
    PETG:
      filaments:
        Jet Black:
          color: black
        Galaxy Silver:
          color: silver
`

const projectConfig = `version: "1.0"
history:
  path: databases/history.db
metrics:
  textfile: metrics/catalogbuilder.prom
`

// newProject creates a working directory with one source document and a
// configuration file, and changes into it.
func newProject(t *testing.T) (*Global, *bytes.Buffer, *CLI) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll("data", 0o750))
	require.NoError(t, os.WriteFile(filepath.Join("data", "prusament.yaml"), []byte(prusamentDoc), 0o600))
	require.NoError(t, os.WriteFile("catalogbuilder.yaml", []byte(projectConfig), 0o600))

	out := &bytes.Buffer{}
	return &Global{Logger: slog.New(slog.DiscardHandler), Out: out}, out, &CLI{}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		env     string
		want    slog.Level
		wantErr bool
	}{
		{name: "default", want: slog.LevelInfo},
		{name: "verbose", verbose: true, want: slog.LevelDebug},
		{name: "env overrides verbose", verbose: true, env: "warn", want: slog.LevelWarn},
		{name: "env upper case", env: "ERROR", want: slog.LevelError},
		{name: "invalid env", env: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logLevel(tt.verbose, tt.env)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags(t *testing.T) {
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Vars{"version": "test"})
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"build", "--strict", "-w", "3", "--format", "yaml", "--sources", "docs"})
	require.NoError(t, err)
	assert.Equal(t, "build", kctx.Command())
	assert.True(t, cli.Build.Strict)
	require.NotNil(t, cli.Build.Workers)
	assert.Equal(t, 3, *cli.Build.Workers)
	assert.Equal(t, "yaml", cli.Build.Format)
	assert.True(t, filepath.IsAbs(cli.Build.Sources))

	cli = &CLI{}
	parser, err = kong.New(cli, kong.Vars{"version": "test"})
	require.NoError(t, err)
	kctx, err = parser.Parse([]string{"daemon", "--interval", "15m", "--no-watch"})
	require.NoError(t, err)
	assert.Equal(t, "daemon", kctx.Command())
	assert.Equal(t, 15*time.Minute, cli.Daemon.Interval)
	assert.True(t, cli.Daemon.NoWatch)
	assert.False(t, cli.Daemon.Watch)

	cli = &CLI{}
	parser, err = kong.New(cli, kong.Vars{"version": "test"})
	require.NoError(t, err)
	_, err = parser.Parse([]string{"daemon", "--watch", "--no-watch"})
	require.Error(t, err)
}

func TestBuildShowHistory(t *testing.T) {
	g, out, root := newProject(t)

	require.NoError(t, (&BuildCmd{}).Run(g, root))
	summary := out.String()
	assert.Contains(t, summary, "Status\tsuccess")
	assert.Contains(t, summary, "Identifiers minted\t2")
	assert.Contains(t, summary, "Descriptors written\t2")

	producers, err := store.Load("databases/producers.json")
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.FileExists(t, filepath.Join("content", "producers", "prusament", "petg", "jet-black.md"))

	prom, err := os.ReadFile(filepath.Join("metrics", "catalogbuilder.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "catalogbuilder_identifiers_assigned_total 2")

	out.Reset()
	require.NoError(t, (&ShowCmd{}).Run(g, root))
	listing := out.String()
	id := producers[0].Materials[0].Filaments[0].ID
	assert.Contains(t, listing, "Prusament\tPETG\tJet Black\t"+id+"\t1")
	assert.Contains(t, listing, "1 producers, 1 materials, 2 filaments")

	out.Reset()
	require.NoError(t, (&ShowCmd{Material: "PLA"}).Run(g, root))
	assert.NotContains(t, out.String(), "Jet Black")

	out.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 5}).Run(g, root))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "\tsuccess\tcli\t")
	buildID := strings.SplitN(lines[1], "\t", 2)[0]

	out.Reset()
	require.NoError(t, (&HistoryCmd{Build: buildID}).Run(g, root))
	assert.Contains(t, out.String(), "RunStarted")
	assert.Contains(t, out.String(), "RunCompleted")

	err = (&HistoryCmd{Build: "missing"}).Run(g, root)
	require.Error(t, err)
	assert.Equal(t, 4, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestBuildOverrides(t *testing.T) {
	g, _, root := newProject(t)
	workers := 1
	cmd := &BuildCmd{Overrides: Overrides{Output: "site", Format: "yaml", Workers: &workers}, Quiet: true}
	require.NoError(t, cmd.Run(g, root))

	data, err := os.ReadFile(filepath.Join("site", "prusament", "petg", "jet-black.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "---\n"))
	assert.NoDirExists(t, filepath.Join("content", "producers"))
}

func TestBuildCorruptCatalog(t *testing.T) {
	g, _, root := newProject(t)
	require.NoError(t, os.MkdirAll("databases", 0o750))
	require.NoError(t, os.WriteFile(filepath.Join("databases", "producers.json"), []byte("{}"), 0o600))

	err := (&BuildCmd{Quiet: true}).Run(g, root)
	require.Error(t, err)
	assert.Equal(t, 7, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.NoDirExists(t, filepath.Join("content", "producers"))
}

func TestBuildInvalidOverride(t *testing.T) {
	g, _, root := newProject(t)
	err := (&BuildCmd{Overrides: Overrides{Format: "toml"}}).Run(g, root)
	require.Error(t, err)
	assert.Equal(t, 7, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestHistoryWithoutJournal(t *testing.T) {
	g, _, root := newProject(t)
	require.NoError(t, os.WriteFile("catalogbuilder.yaml", []byte("version: \"1.0\"\n"), 0o600))

	err := (&HistoryCmd{}).Run(g, root)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestInit(t *testing.T) {
	t.Chdir(t.TempDir())
	out := &bytes.Buffer{}
	g := &Global{Logger: slog.New(slog.DiscardHandler), Out: out}

	require.NoError(t, (&InitCmd{}).Run(g, &CLI{}))
	assert.FileExists(t, "catalogbuilder.yaml")
	assert.Contains(t, out.String(), "initialized successfully")

	err := (&InitCmd{}).Run(g, &CLI{})
	require.Error(t, err)
	require.NoError(t, (&InitCmd{Force: true, Path: "other.yaml"}).Run(g, &CLI{}))
	assert.FileExists(t, "other.yaml")
}

func TestRunDaemonBuildsOnStart(t *testing.T) {
	g, _, root := newProject(t)
	load := loader(g, root, Overrides{})
	cfg, err := load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	opts := daemonOptions(cfg)
	opts.Watch = true
	go func() { done <- RunDaemon(ctx, g, cfg, opts, root.configPath(), load) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join("content", "producers", "prusament", "petg", "galaxy-silver.md"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestFormatTable(t *testing.T) {
	plain := formatTable(false, []string{"A", "B"}, [][]string{{"1", "2"}}, nil)
	assert.Equal(t, "A\tB\n1\t2\n", plain)

	pretty := formatTable(true, []string{"Name", "Count"}, [][]string{{"PETG", "12"}, {"PLA"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, pretty, "╭")
	assert.Contains(t, pretty, "PETG")
	assert.Empty(t, formatTable(true, nil, nil, nil))
}
