// Package config loads catalogbuilder.yaml: environment expansion, defaults
// and validation.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

const (
	// Version is the configuration schema version.
	Version = "1.0"
	// DefaultPath is the configuration file looked up when none is given.
	DefaultPath = "catalogbuilder.yaml"
)

// Config is the complete configuration of a catalogbuilder installation.
type Config struct {
	Version  string         `yaml:"version"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Sources  SourcesConfig  `yaml:"sources"`
	Output   OutputConfig   `yaml:"output"`
	Build    BuildConfig    `yaml:"build"`
	Renderer RendererConfig `yaml:"renderer"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	History  HistoryConfig  `yaml:"history,omitempty"`
	Notify   NotifyConfig   `yaml:"notify,omitempty"`
	Archive  ArchiveConfig  `yaml:"archive,omitempty"`
	Daemon   DaemonConfig   `yaml:"daemon,omitempty"`
}

// CatalogConfig locates the persisted catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SourcesConfig locates the authored source documents.
type SourcesConfig struct {
	Dir      string     `yaml:"dir"`
	Patterns []string   `yaml:"patterns,omitempty"` // glob patterns matched against file names
	Git      *GitSource `yaml:"git,omitempty"`
}

// GitSource fetches the source documents from a repository before a run.
// Dir under the clone is used as the source directory.
type GitSource struct {
	URL      string `yaml:"url"`
	Branch   string `yaml:"branch,omitempty"`
	Token    string `yaml:"token,omitempty"`
	CloneDir string `yaml:"clone_dir,omitempty"`
	Subdir   string `yaml:"subdir,omitempty"`
	Depth    int    `yaml:"depth,omitempty"`

	// Transient clone or pull failures are retried.
	Retries      *int          `yaml:"retries,omitempty"`
	RetryBackoff string        `yaml:"retry_backoff,omitempty"` // fixed|linear|exponential
	RetryDelay   time.Duration `yaml:"retry_delay,omitempty"`
	RetryMax     time.Duration `yaml:"retry_max,omitempty"`
}

// OutputConfig controls the generated content tree.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"`   // json|yaml
	BaseURL string `yaml:"base_url"` // public site encoded in QR codes
}

// BuildConfig tunes a build run.
type BuildConfig struct {
	Workers     int           `yaml:"workers,omitempty"` // 0 selects NumCPU-2
	TaskTimeout time.Duration `yaml:"task_timeout,omitempty"`
	Strict      bool          `yaml:"strict,omitempty"` // leaf failures fail the run
}

// RendererType selects the leaf renderer.
type RendererType string

const (
	RendererNone    RendererType = "none"
	RendererCommand RendererType = "command"
)

// RendererConfig configures the leaf renderer.
type RendererConfig struct {
	Type    RendererType     `yaml:"type"`
	Command string           `yaml:"command,omitempty"`
	Args    []string         `yaml:"args,omitempty"`
	Outputs []RendererOutput `yaml:"outputs,omitempty"`
	Env     []string         `yaml:"env,omitempty"`
}

// RendererOutput declares one file produced by the renderer command.
type RendererOutput struct {
	Name     string `yaml:"name"`
	Filename string `yaml:"filename"`
	Preview  bool   `yaml:"preview,omitempty"`
}

// MetricsConfig exports build metrics.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // node_exporter textfile path
	Listen   string `yaml:"listen,omitempty"`   // daemon /metrics address
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"` // sqlite database; empty disables
	Keep int    `yaml:"keep,omitempty"` // runs kept in the in-memory projection
}

// NotifyConfig publishes run summaries.
type NotifyConfig struct {
	URL     string `yaml:"url,omitempty"` // NATS server; empty disables
	Subject string `yaml:"subject,omitempty"`
}

// ArchiveConfig uploads catalog snapshots to S3 compatible storage.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"` // empty disables
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

// DaemonConfig controls long-running mode.
type DaemonConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"` // 0 disables scheduled rebuilds
	Watch    bool          `yaml:"watch,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// Load reads the configuration at path. An empty path yields the defaults.
// Environment files are loaded first so ${VAR} references in the file can
// use them.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		// #nosec G304 -- path is the operator supplied config file
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", path).
				UserAction().
				Build()
		}
		if err != nil {
			return nil, ferrors.ConfigError("failed to read configuration file").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		if err := decode(data, cfg); err != nil {
			return nil, ferrors.ConfigError("invalid configuration file").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve picks the configuration file to load: the explicit path if given,
// otherwise DefaultPath when it exists, otherwise none.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			UserAction().
			Build()
	}

	example := Example()
	var buf bytes.Buffer
	buf.WriteString("# catalogbuilder configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(example); err != nil {
		return ferrors.InternalError("failed to encode example configuration").WithCause(err).Build()
	}
	if err := enc.Close(); err != nil {
		return ferrors.InternalError("failed to encode example configuration").WithCause(err).Build()
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return ferrors.FileSystemError("failed to write configuration file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}

// Example returns the configuration written by Init.
func Example() *Config {
	cfg := &Config{
		Build: BuildConfig{TaskTimeout: 2 * time.Minute},
		Renderer: RendererConfig{
			Type:    RendererCommand,
			Command: "openscad",
			Args: []string{
				"-o", "{{.BaseName}}.stl",
				"-D", `url="{{.URL}}"`,
				"qrtag.scad",
			},
		},
		History: HistoryConfig{Path: "databases/history.db"},
		Daemon:  DaemonConfig{Watch: true, Debounce: 2 * time.Second},
	}
	applyDefaults(cfg)
	return cfg
}
