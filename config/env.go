package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, &ConfigError{Field: key, Err: fmt.Errorf("parse int %q: %w", value, err)}
	}
	return n, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, &ConfigError{Field: key, Err: fmt.Errorf("parse duration %q: %w", value, err)}
	}
	return d, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, &ConfigError{Field: key, Err: fmt.Errorf("parse bool %q: %w", value, err)}
	}
	return b, true, nil
}

// ApplyEnv overlays HARVEST_* and REDIS_* variables onto c. Flags parsed
// afterwards take precedence because the binaries use the result as their
// flag defaults.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"HARVEST_BASE_URL":      &c.BaseURL,
		"HARVEST_USER_AGENT":    &c.UserAgent,
		"HARVEST_CATALOG":       &c.CatalogFile,
		"HARVEST_SCHEDULE":      &c.Schedule,
		"HARVEST_STORE":         &c.StoreBackend,
		"HARVEST_SQLITE_PATH":   &c.SQLitePath,
		"HARVEST_OUTPUT_DIR":    &c.OutputDir,
		"HARVEST_OUTPUT_FORMAT": &c.OutputFormat,
		"HARVEST_METRICS_ADDR":  &c.MetricsAddr,
		"REDIS_ADDRESS":         &c.RedisAddr,
		"REDIS_PASSWORD":        &c.RedisPassword,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"HARVEST_MAX_ATTEMPTS": &c.MaxAttempts,
		"HARVEST_PARALLEL":     &c.Parallelism,
		"HARVEST_WORKERS":      &c.Workers,
		"HARVEST_CLAIM_BATCH":  &c.ClaimBatch,
		"REDIS_DB":             &c.RedisDB,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"HARVEST_TIMEOUT":            &c.Timeout,
		"HARVEST_FULL_SCAN_INTERVAL": &c.FullScanInterval,
		"HARVEST_DISPATCH_TIMEOUT":   &c.DispatchTimeout,
		"HARVEST_POLL_INTERVAL":      &c.PollInterval,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok, err := EnvBool("HARVEST_MIRROR_TO_ALL"); err != nil {
		return err
	} else if ok {
		c.MirrorToAggregate = value
	}
	return nil
}
