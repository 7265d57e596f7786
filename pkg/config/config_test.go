package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv unsets the variables Load reads so tests do not inherit
// settings from the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		ConfigFileEnvVar,
		"VAPORDECK_DATA_DIR",
		"VAPORDECK_STATE_ROOT",
		"VAPORDECK_STATE_BACKEND",
		"VAPORDECK_JOURNAL_PATH",
		"VAPORDECK_POLICY_DIRS",
		"VAPORDECK_S3_BUCKET",
		"VAPORDECK_LOG_LEVEL",
		"VAPORDECK_LOG_FORMAT",
		"VAPORDECK_METRICS_ENABLED",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != "local" {
		t.Errorf("expected local backend, got %s", cfg.Backend)
	}
	if !strings.HasSuffix(cfg.StateRoot, filepath.Join(".vapordeck", "instances")) {
		t.Errorf("unexpected state root: %s", cfg.StateRoot)
	}
	if !strings.HasSuffix(cfg.JournalPath, "journal.db") {
		t.Errorf("unexpected journal path: %s", cfg.JournalPath)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VAPORDECK_STATE_BACKEND", "s3")
	t.Setenv("VAPORDECK_S3_BUCKET", "deck-state")
	t.Setenv("VAPORDECK_S3_REGION", "fr-par")
	t.Setenv("VAPORDECK_LOG_LEVEL", "debug")
	t.Setenv("VAPORDECK_POLICY_DIRS", "/etc/vapordeck/policies:/opt/policies")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != "s3" || cfg.S3.Bucket != "deck-state" || cfg.S3.Region != "fr-par" {
		t.Errorf("s3 settings not applied: %+v", cfg.S3)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	if len(cfg.PolicyDirs) != 2 || cfg.PolicyDirs[1] != "/opt/policies" {
		t.Errorf("policy dirs not split: %v", cfg.PolicyDirs)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "vapordeck.yaml")
	content := "backend: s3\ns3:\n  bucket: deck-state\n  prefix: instances\nlog:\n  level: warn\n  format: json\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != "s3" || cfg.S3.Prefix != "instances" {
		t.Errorf("file settings not applied: backend=%s s3=%+v", cfg.Backend, cfg.S3)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("log settings not applied: %+v", cfg.Log)
	}
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "vapordeck.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnvVar, path)
	t.Setenv("VAPORDECK_LOG_LEVEL", "trace")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "trace" {
		t.Errorf("expected env to override file, got %s", cfg.Log.Level)
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "vapordeck.yaml")
	if err := os.WriteFile(path, []byte("bakend: s3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnvVar, path)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unknown config key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "bad backend", mutate: func(c *Config) { c.Backend = "gcs" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Backend = "s3" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "bad trace exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTelemetryMapping(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":9191"

	tc := cfg.Telemetry("1.2.3")
	if tc.ServiceVersion != "1.2.3" {
		t.Errorf("service version not applied: %s", tc.ServiceVersion)
	}
	if tc.Logging.Level != "debug" {
		t.Errorf("log level not applied: %s", tc.Logging.Level)
	}
	if !tc.Metrics.Enabled || tc.Metrics.ListenAddress != ":9191" {
		t.Errorf("metrics settings not applied: %+v", tc.Metrics)
	}
	if err := tc.Validate(); err != nil {
		t.Fatalf("mapped telemetry config is invalid: %v", err)
	}
}
