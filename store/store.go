// Package store abstracts the key-value, set and bounded-list primitives the
// harvester keeps its cross-job state in.
package store

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-customers/models"
)

// Store is the persistent backend shared by every planner and harvest job.
// Implementations must make each call atomic on its own.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	IsMember(ctx context.Context, setKey, member string) (bool, error)
	Insert(ctx context.Context, setKey, member string) error
	Cardinality(ctx context.Context, setKey string) (int64, error)
	// PushBounded prepends entry and trims the list to its newest maxLen
	// entries.
	PushBounded(ctx context.Context, listKey, entry string, maxLen int) error
	// Range returns up to limit entries, newest first.
	Range(ctx context.Context, listKey string, limit int) ([]string, error)
	Close() error
}

// StoreError wraps a failed store round-trip.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Errorf("store %s %s: %w", e.Op, e.Key, e.Err).Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

// ErrorHistoryKey holds the global list of failed jobs.
const ErrorHistoryKey = "history:errors"

// SeenKey is the novelty set of target.
func SeenKey(target models.TargetID) string { return "seen:" + string(target) }

// LastCheckKey holds the last incremental run of target in Unix milliseconds.
func LastCheckKey(target models.TargetID) string { return "last_check:" + string(target) }

// LastFullScanKey holds the last full scan of target in Unix milliseconds.
func LastFullScanKey(target models.TargetID) string { return "last_full_scan:" + string(target) }

// HistoryKey is the bounded run history of target.
func HistoryKey(target models.TargetID) string { return "history:" + string(target) }
