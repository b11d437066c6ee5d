package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/targets"
)

// Sink is the durable destination of newly observed records. Append with
// no records is a no-op; repeated appends of one record are tolerated.
type Sink interface {
	Append(ctx context.Context, target models.TargetID, records []models.Record) error
	Close() error
}

// SinkError reports a failed forward of new records.
type SinkError struct {
	Target models.TargetID
	Count  int
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s (%d records): %v", e.Target, e.Count, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// partitions maps each target to its output partition name.
type partitions map[models.TargetID]string

func newPartitions(catalog *targets.Catalog) partitions {
	p := make(partitions)
	for _, tc := range catalog.All() {
		p[tc.ID] = tc.Output
	}
	return p
}

func (p partitions) name(target models.TargetID) string {
	if out, ok := p[target]; ok {
		return out
	}
	return string(target)
}

// MultiSink forwards every append to all of its sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append writes to every sink and joins their failures.
func (m *MultiSink) Append(ctx context.Context, target models.TargetID, records []models.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, target, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDualSink writes CSV and JSONL partitions side by side in dir.
func NewDualSink(dir string, catalog *targets.Catalog) (*MultiSink, error) {
	csvSink, err := NewCSVSink(dir, catalog)
	if err != nil {
		return nil, fmt.Errorf("create csv sink: %w", err)
	}
	jsonSink, err := NewJSONSink(dir, catalog)
	if err != nil {
		csvSink.Close()
		return nil, fmt.Errorf("create json sink: %w", err)
	}
	return NewMultiSink(csvSink, jsonSink), nil
}
