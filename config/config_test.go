package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"property-tracker/models"
)

// isolate points SOURCES_FILE at a path that does not exist and clears the
// variables the tests rely on.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MODE", "CACHE_BACKEND", "CACHE_TTL", "FETCH_TIMEOUT", "MAX_RETRIES",
		"CATALOG_SOURCE", "DATABASE_URL", "REDIS_URL", "RATE_LIMIT_MS", "MAX_CONCURRENCY", "HTTP_ADDR"} {
		t.Setenv(k, "")
	}
	t.Setenv("SOURCES_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
}

func TestFromEnvDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("REFRESH_SCHEDULE", "")
	os.Unsetenv("REFRESH_SCHEDULE")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != ModeCached || cfg.HTTPAddr != ":5000" || cfg.CacheBackend != BackendFile {
		t.Errorf("defaults: got mode=%q addr=%q backend=%q", cfg.Mode, cfg.HTTPAddr, cfg.CacheBackend)
	}
	if cfg.CacheTTL != time.Hour || cfg.FetchTimeout != 30*time.Second {
		t.Errorf("durations: got ttl=%v timeout=%v", cfg.CacheTTL, cfg.FetchTimeout)
	}
	if cfg.MaxRetries != 1 || cfg.MaxConcurrency != 3 {
		t.Errorf("ints: got retries=%d concurrency=%d", cfg.MaxRetries, cfg.MaxConcurrency)
	}
	if cfg.RefreshSchedule != "@every 6h" {
		t.Errorf("schedule: got %q", cfg.RefreshSchedule)
	}
	if got := cfg.EnabledSources(); len(got) != 3 {
		t.Errorf("enabled sources: got %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MODE", "LIVE")
	t.Setenv("CACHE_TTL", "15m")
	t.Setenv("FETCH_TIMEOUT", "not-a-duration")
	t.Setenv("MAX_RETRIES", "3")
	t.Setenv("REFRESH_SCHEDULE", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("mode: got %q", cfg.Mode)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("ttl: got %v", cfg.CacheTTL)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("invalid duration must fall back: got %v", cfg.FetchTimeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("retries: got %d", cfg.MaxRetries)
	}
	if cfg.RefreshSchedule != "" {
		t.Errorf("empty schedule must disable refresh, got %q", cfg.RefreshSchedule)
	}
}

func TestSourcesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sources.yaml")
	yaml := `
sources:
  lbs:
    ttl: 2h
    state: BW
    rate_limit_ms: 500
  volksbank:
    enabled: false
  Sparkasse:
    mode: fixture
    fixture_path: ./fixtures/sparkasse.json
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SOURCES_FILE", path)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	lbs := cfg.Source(models.SourceLBS)
	if lbs.TTL != 2*time.Hour || lbs.Timeout != cfg.FetchTimeout || lbs.State != "BW" || lbs.Mode != SourceModeLive {
		t.Errorf("lbs: got %+v", lbs)
	}
	if lbs.MinInterval() != 500*time.Millisecond {
		t.Errorf("lbs interval: got %v", lbs.MinInterval())
	}
	if spk := cfg.Source(models.SourceSparkasse); spk.Mode != SourceModeFixture || spk.TTL != cfg.CacheTTL {
		t.Errorf("sparkasse: got %+v", spk)
	}

	enabled := cfg.EnabledSources()
	if len(enabled) != 2 || enabled[0] != models.SourceSparkasse || enabled[1] != models.SourceLBS {
		t.Errorf("enabled: got %v", enabled)
	}
}

func TestSourcesFileUnknownSource(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sources.yaml")
	os.WriteFile(path, []byte("sources:\n  immowelt:\n    mode: live\n"), 0o644)
	t.Setenv("SOURCES_FILE", path)

	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "immowelt") {
		t.Errorf("expected unknown source error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Mode: ModeCached, CacheBackend: BackendFile, CatalogSource: BackendFile,
			CacheTTL: time.Hour, FetchTimeout: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "hybrid" }, "MODE"},
		{"redis without url", func(c *Config) { c.CacheBackend = BackendRedis }, "REDIS_URL"},
		{"postgres cache without url", func(c *Config) { c.CacheBackend = BackendPostgres }, "DATABASE_URL"},
		{"postgres catalog without url", func(c *Config) { c.CatalogSource = BackendPostgres }, "DATABASE_URL"},
		{"unknown backend", func(c *Config) { c.CacheBackend = "memcached" }, "CACHE_BACKEND"},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, "CACHE_TTL"},
		{"fixture without path", func(c *Config) {
			c.Sources = map[models.Source]SourceConfig{models.SourceLBS: {Mode: SourceModeFixture}}
		}, "fixture_path"},
	}

	for _, tt := range tests {
		c := base()
		tt.mutate(c)
		err := c.Validate()
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: got %v, want error mentioning %s", tt.name, err, tt.wantErr)
		}
	}
}
