package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds harvester, planner and storage configuration.
type Config struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	MaxAttempts      int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	Parallelism      int
	Delay            time.Duration
	RandomDelay      time.Duration
	RespectRobotsTxt bool

	CatalogFile       string
	FullScanInterval  time.Duration
	BaseDelay         time.Duration
	DelayJitter       float64
	DispatchTimeout   time.Duration
	PlanTimeout       time.Duration
	Schedule          string // cron expression; empty runs a single cycle
	MirrorToAggregate bool

	StoreBackend  string // redis or sqlite
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	Workers      int
	PollInterval time.Duration
	ClaimBatch   int
	LeaseTimeout time.Duration

	OutputDir     string
	OutputFormat  string // csv, json, dual, or sqlite
	DedupeMaxSize int
	MetricsAddr   string
	Verbose       bool
}

// DefaultConfig returns the production cadence for the customer listing.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.odoo.com/de_DE/customers",
		UserAgent:        "Mozilla/5.0 (compatible; CustomerWatchBot/1.0)",
		Timeout:          30 * time.Second,
		MaxAttempts:      3,
		RetryBackoff:     2 * time.Second,
		RetryBackoffMax:  30 * time.Second,
		Parallelism:      5,
		Delay:            0,
		RandomDelay:      0,
		RespectRobotsTxt: false,

		FullScanInterval: 7 * 24 * time.Hour,
		BaseDelay:        60 * time.Second,
		DelayJitter:      0.2,
		DispatchTimeout:  20 * time.Second,
		PlanTimeout:      30 * time.Second,

		StoreBackend: "redis",
		RedisAddr:    "localhost:6379",
		SQLitePath:   "data/harvest.db",

		Workers:      4,
		PollInterval: 5 * time.Second,
		ClaimBatch:   10,
		LeaseTimeout: 5 * time.Minute,

		OutputDir:     "output",
		OutputFormat:  "csv",
		DedupeMaxSize: 10000,
	}
}

// Validate ensures all configuration values are coherent. Failures are
// returned as *ConfigError.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return invalid("base_url", "base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return &ConfigError{Field: "base_url", Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	if parsedURL.Host == "" {
		return invalid("base_url", "base URL must include a host")
	}
	if c.UserAgent == "" {
		return invalid("user_agent", "user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return invalid("timeout", "timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return invalid("max_attempts", "max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return invalid("retry_backoff", "retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return invalid("retry_backoff_max", "retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return invalid("retry_backoff", fmt.Sprintf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax))
	}
	if c.Parallelism <= 0 {
		return invalid("parallelism", "parallelism must be positive")
	}
	if c.Delay < 0 || c.RandomDelay < 0 {
		return invalid("delay", "delay cannot be negative")
	}
	if c.FullScanInterval <= 0 {
		return invalid("full_scan_interval", "full scan interval must be positive")
	}
	if c.BaseDelay <= 0 {
		return invalid("base_delay", "base delay must be positive")
	}
	if c.DelayJitter < 0 || c.DelayJitter >= 1 {
		return invalid("delay_jitter", "delay jitter must be in [0, 1)")
	}
	if c.DispatchTimeout <= 0 || c.PlanTimeout <= 0 {
		return invalid("timeout", "dispatch and plan timeouts must be positive")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return &ConfigError{Field: "schedule", Err: fmt.Errorf("invalid cron schedule: %w", err)}
		}
	}
	switch c.StoreBackend {
	case "redis":
		if c.RedisAddr == "" {
			return invalid("redis_addr", "redis address cannot be empty")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return invalid("sqlite_path", "sqlite path cannot be empty")
		}
	default:
		return invalid("store", "store backend must be redis or sqlite")
	}
	if c.Workers <= 0 {
		return invalid("workers", "workers must be positive")
	}
	if c.PollInterval <= 0 {
		return invalid("poll_interval", "poll interval must be positive")
	}
	if c.ClaimBatch <= 0 {
		return invalid("claim_batch", "claim batch must be positive")
	}
	if c.LeaseTimeout <= c.Timeout {
		return invalid("lease_timeout", "lease timeout must exceed the request timeout")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return invalid("output_format", "output format must be csv, json, dual, or sqlite")
	}
	if c.OutputDir == "" {
		return invalid("output_dir", "output dir cannot be empty")
	}
	if c.DedupeMaxSize < 0 {
		return invalid("dedupe_max_size", "dedupe max size cannot be negative")
	}
	return nil
}
