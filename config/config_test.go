package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero attempts",
			mutate: func(cfg *Config) {
				cfg.MaxAttempts = 0
			},
			wantErr: "max attempts",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "cannot exceed",
		},
		{
			name: "jitter out of range",
			mutate: func(cfg *Config) {
				cfg.DelayJitter = 1.5
			},
			wantErr: "jitter",
		},
		{
			name: "bad cron",
			mutate: func(cfg *Config) {
				cfg.Schedule = "every day"
			},
			wantErr: "cron",
		},
		{
			name: "unknown store",
			mutate: func(cfg *Config) {
				cfg.StoreBackend = "memcached"
			},
			wantErr: "store backend",
		},
		{
			name: "lease shorter than request",
			mutate: func(cfg *Config) {
				cfg.LeaseTimeout = time.Second
			},
			wantErr: "lease timeout",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestScheduleAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule = "0 6 * * *"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("HARVEST_WORKERS", "9")
	t.Setenv("HARVEST_TIMEOUT", "45s")
	t.Setenv("REDIS_ADDRESS", "redis:6380")
	t.Setenv("HARVEST_MIRROR_TO_ALL", "true")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Workers != 9 {
		t.Fatalf("workers = %d, want 9", cfg.Workers)
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("timeout = %s, want 45s", cfg.Timeout)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
	if !cfg.MirrorToAggregate {
		t.Fatalf("mirror flag not applied")
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("HARVEST_WORKERS", "many")

	err := DefaultConfig().ApplyEnv()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "HARVEST_WORKERS" {
		t.Fatalf("expected ConfigError for HARVEST_WORKERS, got %v", err)
	}
}
