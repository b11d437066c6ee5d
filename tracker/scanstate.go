package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/store"
)

// ScanStates reads and writes the cadence timestamps of each target.
type ScanStates struct {
	store store.Store
}

// NewScanStates builds a scan-state accessor on s.
func NewScanStates(s store.Store) *ScanStates {
	return &ScanStates{store: s}
}

// Get loads both timestamps of target. Unset timestamps are zero.
func (s *ScanStates) Get(ctx context.Context, target models.TargetID) (models.ScanState, error) {
	var (
		state models.ScanState
		errs  []error
	)
	last, err := s.read(ctx, store.LastCheckKey(target))
	if err != nil {
		errs = append(errs, err)
	}
	state.LastIncrementalAt = last

	full, err := s.read(ctx, store.LastFullScanKey(target))
	if err != nil {
		errs = append(errs, err)
	}
	state.LastFullScanAt = full

	return state, errors.Join(errs...)
}

// MarkChecked records a completed planning cycle for target.
func (s *ScanStates) MarkChecked(ctx context.Context, target models.TargetID, at time.Time) error {
	return s.write(ctx, store.LastCheckKey(target), at)
}

// MarkFullScan records a completed full-scan planning cycle for target.
func (s *ScanStates) MarkFullScan(ctx context.Context, target models.TargetID, at time.Time) error {
	return s.write(ctx, store.LastFullScanKey(target), at)
}

func (s *ScanStates) read(ctx context.Context, key string) (time.Time, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	if ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func (s *ScanStates) write(ctx context.Context, key string, at time.Time) error {
	return s.store.Set(ctx, key, strconv.FormatInt(at.UnixMilli(), 10))
}
