package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/open-filament/catalogbuilder/internal/config"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// LogLevelEnv overrides the log level selected by --verbose.
const LogLevelEnv = "CATALOGBUILDER_LOG_LEVEL"

// Global is shared state handed to every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (default: ./catalogbuilder.yaml when present)" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Merge source documents into the catalog and generate content"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Show    ShowCmd    `cmd:"" help:"Print the catalog tree"`
	History HistoryCmd `cmd:"" help:"List past runs from the run journal"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild whenever source documents change"`
	Daemon  DaemonCmd  `cmd:"" help:"Rebuild on a schedule and on source changes"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level, err := logLevel(c.Verbose, os.Getenv(LogLevelEnv))
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func logLevel(verbose bool, env string) (slog.Level, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if env = strings.TrimSpace(env); env != "" {
		if err := level.UnmarshalText([]byte(env)); err != nil {
			return level, ferrors.ConfigError("invalid log level").
				WithCause(err).
				WithContext("env", LogLevelEnv).
				WithContext("value", env).
				UserAction().
				Build()
		}
	}
	return level, nil
}

// loadConfig resolves and loads the configuration file, falling back to the
// defaults when no file exists.
func (c *CLI) loadConfig(logger *slog.Logger) (*config.Config, error) {
	path := config.Resolve(c.Config)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Debug("No configuration file found; using defaults")
	} else {
		logger.Debug("Configuration loaded", slog.String("path", path))
	}
	return cfg, nil
}

// configPath returns the file a watcher should follow, if any.
func (c *CLI) configPath() string {
	return config.Resolve(c.Config)
}
