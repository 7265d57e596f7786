package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vapordeck/vapordeck/pkg/journal"
	"github.com/vapordeck/vapordeck/pkg/state"
	"github.com/vapordeck/vapordeck/pkg/store"
	"github.com/vapordeck/vapordeck/pkg/telemetry"
)

// ConfigFileEnvVar points Load at an explicit configuration file. When
// unset, Load falls back to <data dir>/config.yaml if it exists.
const ConfigFileEnvVar = "VAPORDECK_CONFIG"

// Config is the application configuration. File values override the
// defaults, environment variables override the file.
type Config struct {
	// DataDir is the base directory for local state, the journal, and
	// site policies.
	DataDir string `env:"DATA_DIR" yaml:"data_dir" validate:"required"`

	// StateRoot is the directory holding instance records when the
	// local backend is active. Defaults to <DataDir>/instances.
	StateRoot string `env:"STATE_ROOT" yaml:"state_root"`

	// Backend selects where instance records are persisted.
	Backend string `env:"STATE_BACKEND" yaml:"backend" validate:"oneof=local s3"`

	// S3 configures the s3 backend. Ignored when Backend is local.
	S3 S3Settings `envPrefix:"S3_" yaml:"s3"`

	// JournalPath is the SQLite file recording lifecycle events.
	// Defaults to <DataDir>/journal.db.
	JournalPath string `env:"JOURNAL_PATH" yaml:"journal_path"`

	// PolicyDirs are extra directories of rego policies loaded next to
	// the built-in guardrails.
	PolicyDirs []string `env:"POLICY_DIRS" envSeparator:":" yaml:"policy_dirs"`

	Log     LogSettings     `envPrefix:"LOG_" yaml:"log"`
	Metrics MetricsSettings `envPrefix:"METRICS_" yaml:"metrics"`
	Tracing TracingSettings `envPrefix:"TRACING_" yaml:"tracing"`
}

// S3Settings configures the s3 record backend.
type S3Settings struct {
	Bucket    string `env:"BUCKET" yaml:"bucket"`
	Prefix    string `env:"PREFIX" yaml:"prefix"`
	Region    string `env:"REGION" yaml:"region"`
	AccessKey string `env:"ACCESS_KEY" yaml:"access_key"`
	SecretKey string `env:"SECRET_KEY" yaml:"secret_key"`
}

// LogSettings configures structured logging.
type LogSettings struct {
	Level  string `env:"LEVEL" yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `env:"FORMAT" yaml:"format" validate:"oneof=console json"`
	Output string `env:"OUTPUT" yaml:"output"`
	Caller bool   `env:"CALLER" yaml:"caller"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled       bool   `env:"ENABLED" yaml:"enabled"`
	ListenAddress string `env:"ADDRESS" yaml:"address"`
}

// TracingSettings configures OpenTelemetry tracing.
type TracingSettings struct {
	Enabled      bool    `env:"ENABLED" yaml:"enabled"`
	Exporter     string  `env:"EXPORTER" yaml:"exporter"`
	Endpoint     string  `env:"ENDPOINT" yaml:"endpoint"`
	SamplingRate float64 `env:"SAMPLING_RATE" yaml:"sampling_rate"`
	Insecure     bool    `env:"INSECURE" yaml:"insecure"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dataDir := os.Getenv("HOME")
	if dataDir == "" {
		dataDir = "."
	}
	dataDir = filepath.Join(dataDir, ".vapordeck")

	return &Config{
		DataDir: dataDir,
		Backend: "local",
		Log: LogSettings{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsSettings{
			Enabled:       false,
			ListenAddress: ":9090",
		},
		Tracing: TracingSettings{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
			Insecure:     true,
		},
	}
}

// Load builds the configuration from defaults, the optional config
// file, and VAPORDECK_-prefixed environment variables, in that order
// of precedence.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv(ConfigFileEnvVar)
	if path == "" {
		fallback := filepath.Join(cfg.DataDir, "config.yaml")
		if _, err := os.Stat(fallback); err == nil {
			path = fallback
		}
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "VAPORDECK_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyDerived fills paths that default relative to the data dir.
func (c *Config) applyDerived() {
	if c.StateRoot == "" {
		c.StateRoot = filepath.Join(c.DataDir, "instances")
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Backend == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("invalid configuration: s3 backend requires a bucket")
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid configuration: unsupported trace exporter %q", c.Tracing.Exporter)
		}
	}
	return nil
}

// Telemetry maps the application configuration onto the telemetry
// stack's configuration.
func (c *Config) Telemetry(serviceVersion string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = serviceVersion
	tc.Logging.Level = c.Log.Level
	tc.Logging.Format = c.Log.Format
	if c.Log.Output != "" {
		tc.Logging.Output = c.Log.Output
	}
	tc.Logging.EnableCaller = c.Log.Caller
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure
	return tc
}

// Journal maps the application configuration onto the journal
// configuration.
func (c *Config) Journal() journal.Config {
	return journal.Config{Path: c.JournalPath}
}

// OpenStore opens the record store selected by the configuration.
func OpenStore(ctx context.Context, c *Config, parser *state.Parser, logger zerolog.Logger) (store.Store, error) {
	switch c.Backend {
	case "local":
		return store.NewFileStore(c.StateRoot, parser, logger)
	case "s3":
		return store.NewS3Store(ctx, store.S3Config{
			Bucket:    c.S3.Bucket,
			Prefix:    c.S3.Prefix,
			Region:    c.S3.Region,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
		}, parser, logger)
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", c.Backend)
	}
}
