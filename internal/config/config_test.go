package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
database:
  host: ${TEST_DB_HOST:-localhost}
  port: 5432
  user: postgres
  password: postgres
  database: ryda

dispatch:
  base_url: ${TEST_DISPATCH_URL:-ws://localhost:3002}

routes:
  base_url: https://router.project-osrm.org

geolocation:
  max_sample_age_seconds: 10
  timeout_seconds: 15

log:
  level: INFO
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestNewAppliesDefaults(t *testing.T) {
	os.Unsetenv("TEST_DB_HOST")
	os.Unsetenv("TEST_DISPATCH_URL")

	cfg, err := New(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB.Host != "localhost" || cfg.DB.Port != 5432 {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Dispatch.BaseURL != "ws://localhost:3002" {
		t.Fatalf("dispatch url = %q", cfg.Dispatch.BaseURL)
	}
	if cfg.Geo.MaxSampleAgeSeconds != 10 || cfg.Geo.TimeoutSeconds != 15 {
		t.Fatalf("unexpected geo config: %+v", cfg.Geo)
	}
}

func TestNewSubstitutesEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")
	t.Setenv("TEST_DISPATCH_URL", "wss://dispatch.ryda.kz")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := New(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB.Host != "db.internal" {
		t.Fatalf("db host = %q", cfg.DB.Host)
	}
	if cfg.Dispatch.BaseURL != "wss://dispatch.ryda.kz" {
		t.Fatalf("dispatch url = %q", cfg.Dispatch.BaseURL)
	}
	if cfg.Secret != "s3cret" {
		t.Fatalf("secret = %q", cfg.Secret)
	}
}

func TestNewMissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
