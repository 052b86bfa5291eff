// Package config loads process configuration from the environment. Both
// required values must be present at startup; the process does not start
// without them.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListenAddr     = ":8080"
	defaultModel          = "claude-3-5-haiku-20241022"
	defaultMaxSteps       = 8
	defaultRequestTimeout = 2 * time.Minute
)

// Config holds the process configuration.
type Config struct {
	// AnthropicAPIKey authenticates oracle calls. Required.
	AnthropicAPIKey string
	// DatabaseURL is the PostgreSQL connection URI. Required.
	DatabaseURL string

	ListenAddr     string
	Model          string
	MaxSteps       int
	RequestTimeout time.Duration
	Verbose        bool
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
		Model:           os.Getenv("ORACLE_MODEL"),
		MaxSteps:        defaultMaxSteps,
		RequestTimeout:  defaultRequestTimeout,
		Verbose:         os.Getenv("VERBOSE") != "",
	}

	if cfg.AnthropicAPIKey == "" {
		return Config{}, fmt.Errorf("anthropic API key is empty (set ANTHROPIC_API_KEY)")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database URL is empty (set DATABASE_URL)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	if v := os.Getenv("ORACLE_MAX_STEPS"); v != "" {
		steps, err := strconv.Atoi(v)
		if err != nil || steps <= 0 {
			return Config{}, fmt.Errorf("invalid ORACLE_MAX_STEPS %q", v)
		}
		cfg.MaxSteps = steps
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT %q", v)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

// NewPool opens a pgx connection pool for the configured database and
// verifies connectivity.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}
