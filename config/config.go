package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"property-tracker/models"
)

const (
	ModeLive   = "live"
	ModeCached = "cached"

	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	SourceModeLive    = "live"
	SourceModeFixture = "fixture"
)

// Config holds all application configuration loaded from environment variables
// and the per-source YAML file.
type Config struct {
	Mode     string
	HTTPAddr string
	LogLevel string

	CacheBackend string
	CacheDir     string
	CacheTTL     time.Duration
	FetchTimeout time.Duration

	MaxRetries     int
	MaxConcurrency int
	RateLimitMs    int

	CatalogSource string
	CatalogPath   string

	DatabaseURL string
	RedisURL    string
	RabbitMQURL string

	RefreshSchedule string
	ChromeBin       string
	SourcesFile     string

	Sources map[models.Source]SourceConfig
}

// SourceConfig tunes one portal. Zero values inherit the global settings.
type SourceConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	Mode        string        `yaml:"mode"`
	BaseURL     string        `yaml:"base_url"`
	FixturePath string        `yaml:"fixture_path"`
	TTL         time.Duration `yaml:"ttl"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	RateLimitMs int           `yaml:"rate_limit_ms"`
	State       string        `yaml:"state"`
}

type sourcesFile struct {
	Sources map[string]SourceConfig `yaml:"sources"`
}

// Load reads the .env file and returns a populated Config struct.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// FromEnv builds the Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Mode:     strings.ToLower(getEnv("MODE", ModeCached)),
		HTTPAddr: getEnv("HTTP_ADDR", ":5000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", BackendFile)),
		CacheDir:     getEnv("CACHE_DIR", "./cache"),
		CacheTTL:     getEnvDuration("CACHE_TTL", time.Hour),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 1),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 0),

		CatalogSource: strings.ToLower(getEnv("CATALOG_SOURCE", BackendFile)),
		CatalogPath:   getEnv("CATALOG_PATH", "./properties_cache.json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		ChromeBin:   getEnv("CHROME_BIN", ""),
		SourcesFile: getEnv("SOURCES_FILE", "./config/sources.yaml"),
	}

	// An explicitly empty schedule disables background refresh.
	cfg.RefreshSchedule = "@every 6h"
	if v, ok := os.LookupEnv("REFRESH_SCHEDULE"); ok {
		cfg.RefreshSchedule = strings.TrimSpace(v)
	}

	sources, err := loadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources
	return cfg, nil
}

// loadSources reads the YAML file. A missing file means every source runs
// live with the global settings.
func loadSources(path string) (map[models.Source]SourceConfig, error) {
	out := make(map[models.Source]SourceConfig)

	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(blob, &file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for name, sc := range file.Sources {
		src, ok := models.ParseSource(name)
		if !ok {
			return nil, fmt.Errorf("config: %s: unknown source %q", path, name)
		}
		out[src] = sc
	}
	return out, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLive, ModeCached:
	default:
		errs = append(errs, fmt.Errorf("MODE must be %q or %q, got %q", ModeLive, ModeCached, c.Mode))
	}

	switch c.CacheBackend {
	case BackendFile:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("CACHE_BACKEND=redis requires REDIS_URL"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("CACHE_BACKEND=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}

	switch c.CatalogSource {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("CATALOG_SOURCE=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CATALOG_SOURCE %q", c.CatalogSource))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %v", c.CacheTTL))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.FetchTimeout))
	}

	for src, sc := range c.Sources {
		switch sc.Mode {
		case "", SourceModeLive:
		case SourceModeFixture:
			if sc.FixturePath == "" {
				errs = append(errs, fmt.Errorf("source %s: fixture mode requires fixture_path", src))
			}
		default:
			errs = append(errs, fmt.Errorf("source %s: unknown mode %q", src, sc.Mode))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Source returns the settings for src with global defaults applied.
func (c *Config) Source(src models.Source) SourceConfig {
	sc := c.Sources[src]
	if sc.Mode == "" {
		sc.Mode = SourceModeLive
	}
	if sc.TTL <= 0 {
		sc.TTL = c.CacheTTL
	}
	if sc.Timeout <= 0 {
		sc.Timeout = c.FetchTimeout
	}
	if sc.RateLimitMs <= 0 {
		sc.RateLimitMs = c.RateLimitMs
	}
	return sc
}

// EnabledSources lists the sources to build adapters for, in default order.
func (c *Config) EnabledSources() []models.Source {
	var out []models.Source
	for _, src := range models.KnownSources {
		if sc := c.Sources[src]; sc.Enabled != nil && !*sc.Enabled {
			continue
		}
		out = append(out, src)
	}
	return out
}

// MinInterval converts a millisecond rate limit into a duration.
func (sc SourceConfig) MinInterval() time.Duration {
	return time.Duration(sc.RateLimitMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
