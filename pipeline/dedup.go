package pipeline

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/parser"
)

// DedupSink drops records this process already forwarded for the same
// target. Concurrent jobs of one target may both report a record as new;
// the guard catches the repeats that meet in one process.
type DedupSink struct {
	next Sink
	seen *lru.Cache[string, struct{}]

	mu      sync.Mutex
	dropped int
}

// NewDedupSink wraps next with a guard remembering up to size fingerprints.
func NewDedupSink(next Sink, size int) (*DedupSink, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &DedupSink{next: next, seen: cache}, nil
}

// Append forwards the records not yet seen for target.
func (d *DedupSink) Append(ctx context.Context, target models.TargetID, records []models.Record) error {
	fresh := make([]models.Record, 0, len(records))
	for _, r := range records {
		key := string(target) + "|" + parser.Fingerprint(r)
		if found, _ := d.seen.ContainsOrAdd(key, struct{}{}); found {
			d.mu.Lock()
			d.dropped++
			d.mu.Unlock()
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return nil
	}
	return d.next.Append(ctx, target, fresh)
}

// Dropped returns how many repeats were filtered.
func (d *DedupSink) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close closes the wrapped sink.
func (d *DedupSink) Close() error {
	return d.next.Close()
}
