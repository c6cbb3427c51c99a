// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// Category storage: "postgres" or "memory"
	StoreDriver string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache)
	ValkeyEnabled  bool
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Category tree rules
	MaxDepth     int
	NameFoldCase bool
	NameTrim     bool
	RecentWindow time.Duration
	ViewCacheTTL time.Duration

	// Content counter guard
	CounterTimeout    time.Duration
	CounterRetries    int
	CounterRetryDelay time.Duration

	// HTTP surface
	RequestTimeout     time.Duration
	WriteRateLimit     int // writes per minute per client IP
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode or a value cannot be parsed.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		StoreDriver: envOrDefault("STORE_DRIVER", StoreDriverPostgres),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "knowtree"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "knowtree"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		CORSAllowedOrigins: splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	var p parser
	cfg.ValkeyEnabled = p.boolean("VALKEY_ENABLED", cfg.StoreDriver == StoreDriverPostgres)
	cfg.MaxDepth = p.integer("CATEGORY_MAX_DEPTH", 5)
	cfg.NameFoldCase = p.boolean("CATEGORY_NAME_FOLD_CASE", false)
	cfg.NameTrim = p.boolean("CATEGORY_NAME_TRIM", true)
	cfg.RecentWindow = p.duration("CATEGORY_RECENT_WINDOW", 30*24*time.Hour)
	cfg.ViewCacheTTL = p.duration("VIEW_CACHE_TTL", 30*time.Second)
	cfg.CounterTimeout = p.duration("COUNTER_TIMEOUT", 500*time.Millisecond)
	cfg.CounterRetries = p.integer("COUNTER_RETRIES", 2)
	cfg.CounterRetryDelay = p.duration("COUNTER_RETRY_DELAY", 50*time.Millisecond)
	cfg.RequestTimeout = p.duration("REQUEST_TIMEOUT", 10*time.Second)
	cfg.WriteRateLimit = p.integer("WRITE_RATE_LIMIT", 120)
	if p.err != nil {
		return nil, p.err
	}

	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("CATEGORY_MAX_DEPTH must be at least 1, got %d", cfg.MaxDepth)
	}
	if cfg.CounterRetries < 0 {
		return nil, fmt.Errorf("COUNTER_RETRIES must not be negative, got %d", cfg.CounterRetries)
	}

	if cfg.Env == "production" && cfg.StoreDriver == StoreDriverPostgres {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser reads typed variables and keeps the first parse error.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
