package config

import (
	"errors"
	"fmt"
)

// ConfigError reports missing or invalid static configuration. It is fatal
// at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Errorf("config %s: %w", e.Field, e.Err).Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func invalid(field, msg string) error {
	return &ConfigError{Field: field, Err: errors.New(msg)}
}
