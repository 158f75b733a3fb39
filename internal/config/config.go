// Package config loads the runtime configuration for the sync core and
// its CLI entrypoint, modeled on the teacher's cmd/server/main.go env()
// helper and the mcpserver config.Config/DefaultConfig()/Validate() trio.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config recognizes every option in spec.md §6's configuration table plus
// the process-level DATA_DIR and ENV settings.
type Config struct {
	BaseDelayMS  int64
	MaxDelayMS   int64
	MaxJitterMS  int64
	MaxRetries   int
	RetrySweepMS int64

	ReceiptPriority int
	ExpensePriority int

	StaleAfterMS    int64
	JobCacheStaleMS int64
	JobPageLimit    int

	DataDir string
	Env     string

	DatabaseURL string
	HTTPAddr    string
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		BaseDelayMS:     1000,
		MaxDelayMS:      30000,
		MaxJitterMS:     1000,
		MaxRetries:      5,
		RetrySweepMS:    300000,
		ReceiptPriority: 2,
		ExpensePriority: 1,
		StaleAfterMS:    86_400_000,
		JobCacheStaleMS: 86_400_000,
		JobPageLimit:    100,
		DataDir:         "./data",
		Env:             "prod",
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// FromEnv builds a Config from environment variables, falling back to
// DefaultConfig for anything unset or unparsable.
func FromEnv() Config {
	d := DefaultConfig()
	return Config{
		BaseDelayMS:     envInt("BASE_DELAY_MS", d.BaseDelayMS),
		MaxDelayMS:      envInt("MAX_DELAY_MS", d.MaxDelayMS),
		MaxJitterMS:     envInt("MAX_JITTER_MS", d.MaxJitterMS),
		MaxRetries:      int(envInt("MAX_RETRIES", int64(d.MaxRetries))),
		RetrySweepMS:    envInt("RETRY_SWEEP_MS", d.RetrySweepMS),
		ReceiptPriority: int(envInt("RECEIPT_PRIORITY", int64(d.ReceiptPriority))),
		ExpensePriority: int(envInt("EXPENSE_PRIORITY", int64(d.ExpensePriority))),
		StaleAfterMS:    envInt("STALE_AFTER_MS", d.StaleAfterMS),
		JobCacheStaleMS: envInt("JOB_CACHE_STALE_MS", d.JobCacheStaleMS),
		JobPageLimit:    int(envInt("JOB_PAGE_LIMIT", int64(d.JobPageLimit))),
		DataDir:         env("DATA_DIR", d.DataDir),
		Env:             env("ENV", d.Env),
		DatabaseURL:     env("DATABASE_URL", ""),
		HTTPAddr:        env("HTTP_ADDR", ":8090"),
	}
}

// Validate rejects a config that would produce a nonsensical backoff or
// priority ordering.
func (c Config) Validate() error {
	if c.BaseDelayMS <= 0 {
		return fmt.Errorf("BASE_DELAY_MS must be positive")
	}
	if c.MaxDelayMS < c.BaseDelayMS {
		return fmt.Errorf("MAX_DELAY_MS must be >= BASE_DELAY_MS")
	}
	if c.MaxJitterMS < 0 {
		return fmt.Errorf("MAX_JITTER_MS must be non-negative")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive")
	}
	if c.RetrySweepMS <= 0 {
		return fmt.Errorf("RETRY_SWEEP_MS must be positive")
	}
	if c.ReceiptPriority <= c.ExpensePriority {
		return fmt.Errorf("RECEIPT_PRIORITY must be greater than EXPENSE_PRIORITY")
	}
	if c.JobPageLimit <= 0 {
		return fmt.Errorf("JOB_PAGE_LIMIT must be positive")
	}
	return nil
}

func (c Config) RetrySweepInterval() time.Duration {
	return time.Duration(c.RetrySweepMS) * time.Millisecond
}

func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMS) * time.Millisecond
}

func (c Config) JobCacheStaleAfter() time.Duration {
	return time.Duration(c.JobCacheStaleMS) * time.Millisecond
}
