package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Match API
	// MatchAPIURL is a template with %1 replaced by the match ID and %2 by
	// the API key.
	MatchAPIURL     string        `envconfig:"MATCH_API_URL" required:"true"`
	MatchAPIKey     string        `envconfig:"MATCH_API_KEY" required:"true"`
	MatchAPITimeout time.Duration `envconfig:"MATCH_API_TIMEOUT" default:"30s"`

	// Upstream quota is 60 requests per minute; the runner pauses this long
	// after every fetch attempt.
	FetchDelay time.Duration `envconfig:"FETCH_DELAY" default:"1s"`

	// Reference data sources
	MechDataURL    string        `envconfig:"MECH_DATA_URL" required:"true"`
	RosterIndexURL string        `envconfig:"ROSTER_INDEX_URL" required:"true"`
	MechListURL    string        `envconfig:"MECH_LIST_URL" default:"https://static.mwomercs.com/api/mechs/list/dict.json"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"180s"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"mwocomp"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"mwocomp_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis (optional second-level reference data cache)
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Worker HTTP surface (ingest/recompute triggers, metrics, health)
	WorkerPort  int `envconfig:"WORKER_PORT" default:"8080"`
	MetricsPort int `envconfig:"METRICS_PORT" default:"9090"`

	// Scheduler
	EnableScheduler bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	RecomputeCron   string `envconfig:"RECOMPUTE_CRON" default:"0 3 * * *"`
	MechCheckCron   string `envconfig:"MECH_CHECK_CRON" default:"0 2 * * *"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !strings.Contains(c.MatchAPIURL, "%1") || !strings.Contains(c.MatchAPIURL, "%2") {
		return fmt.Errorf("MATCH_API_URL must contain %%1 (match id) and %%2 (api key) placeholders")
	}

	if c.MatchAPIKey == "" {
		return fmt.Errorf("MATCH_API_KEY is required")
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.FetchDelay < 0 {
		return fmt.Errorf("FETCH_DELAY must not be negative")
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
