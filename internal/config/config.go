package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress        string
	DatabaseURI       string
	GatewayAddress    string
	CatalogAddress    string
	AMQPURL           string
	IdempotencySecret string
	SessionTTL        time.Duration
	SweepInterval     time.Duration
	SweepBatchSize    int
	SweepWorkers      int
	ShutdownTimeout   time.Duration
	ConflictRetries   int
}

const (
	defaultRunAddress        = ":8080"
	defaultIdempotencySecret = "change-me-in-production"
	defaultSessionTTL        = 2 * time.Hour
	defaultSweepInterval     = time.Minute
	defaultSweepBatchSize    = 32
	defaultSweepWorkers      = 4
	defaultShutdownTimeout   = 10 * time.Second
	defaultConflictRetries   = 3
)

// Load parses configuration from .env, environment variables, and flags.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:        getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:       getString(lookup, "DATABASE_URI", ""),
		GatewayAddress:    getString(lookup, "GATEWAY_ADDRESS", ""),
		CatalogAddress:    getString(lookup, "CATALOG_ADDRESS", ""),
		AMQPURL:           getString(lookup, "AMQP_URL", ""),
		IdempotencySecret: getString(lookup, "IDEMPOTENCY_SECRET", defaultIdempotencySecret),
		SessionTTL:        getDuration(lookup, "SESSION_TTL", defaultSessionTTL),
		SweepInterval:     getDuration(lookup, "SWEEP_INTERVAL", defaultSweepInterval),
		SweepBatchSize:    getInt(lookup, "SWEEP_BATCH_SIZE", defaultSweepBatchSize),
		SweepWorkers:      getInt(lookup, "SWEEP_WORKERS", defaultSweepWorkers),
		ShutdownTimeout:   getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		ConflictRetries:   getInt(lookup, "CONFLICT_RETRIES", defaultConflictRetries),
	}

	fs := flag.NewFlagSet("tableside", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		sessionTTLStr      = cfg.SessionTTL.String()
		sweepIntervalStr   = cfg.SweepInterval.String()
		shutdownTimeoutStr = cfg.ShutdownTimeout.String()
	)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.GatewayAddress, "g", cfg.GatewayAddress, "Card gateway base URL")
	fs.StringVar(&cfg.CatalogAddress, "c", cfg.CatalogAddress, "Dish catalog base URL")
	fs.StringVar(&cfg.AMQPURL, "amqp", cfg.AMQPURL, "AMQP broker URL for event publishing (optional)")
	fs.StringVar(&cfg.IdempotencySecret, "idempotency-secret", cfg.IdempotencySecret, "Secret for deriving payment idempotency keys")
	fs.StringVar(&sessionTTLStr, "session-ttl", sessionTTLStr, "Idle session lifetime before the sweep abandons it")
	fs.StringVar(&sweepIntervalStr, "sweep-interval", sweepIntervalStr, "Interval between expiry sweeps")
	fs.IntVar(&cfg.SweepBatchSize, "sweep-batch", cfg.SweepBatchSize, "Maximum sessions per sweep batch")
	fs.IntVar(&cfg.SweepWorkers, "sweep-workers", cfg.SweepWorkers, "Number of concurrent sweep workers")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")
	fs.IntVar(&cfg.ConflictRetries, "conflict-retries", cfg.ConflictRetries, "Bounded retries on version conflicts")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.SessionTTL, err = time.ParseDuration(sessionTTLStr); err != nil {
		return nil, fmt.Errorf("invalid session ttl: %w", err)
	}

	if cfg.SweepInterval, err = time.ParseDuration(sweepIntervalStr); err != nil {
		return nil, fmt.Errorf("invalid sweep interval: %w", err)
	}

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if secretFile, ok := lookup("IDEMPOTENCY_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read idempotency secret file: %w", err)
		}
		cfg.IdempotencySecret = string(content)
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaultSweepBatchSize
	}

	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = defaultSweepWorkers
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = defaultConflictRetries
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	if cfg.GatewayAddress == "" {
		return nil, fmt.Errorf("gateway address must be provided")
	}

	if cfg.CatalogAddress == "" {
		return nil, fmt.Errorf("catalog address must be provided")
	}

	return cfg, nil
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
