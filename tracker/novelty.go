// Package tracker keeps the cross-job state of the harvester: the per-target
// novelty sets, scan cadence timestamps and bounded run history.
package tracker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/parser"
	"github.com/aluiziolira/go-scrape-customers/store"
)

// Novelty filters records against the persistent per-target fingerprint
// sets. Nothing is cached in process; every check is a store round-trip.
type Novelty struct {
	store  store.Store
	mirror bool
}

// NewNovelty builds a filter on s. With mirrorToAggregate set, records new
// for a region target are also marked seen for the aggregate target.
func NewNovelty(s store.Store, mirrorToAggregate bool) *Novelty {
	return &Novelty{store: s, mirror: mirrorToAggregate}
}

// FilterNew returns the records of batch whose fingerprint was not yet in
// the target's set, inserting each one as it is found. Records are handled
// in order, so the first of several identical fingerprints wins.
//
// Store failures do not abort the batch. A record whose membership check
// fails is left out and not inserted, so a later scan finds it again; a
// record whose insert fails is still returned. The returned error joins
// every store failure for logging.
func (n *Novelty) FilterNew(ctx context.Context, target models.TargetID, batch []models.Record) ([]models.Record, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	key := store.SeenKey(target)
	var (
		fresh []models.Record
		errs  []error
	)
	for _, record := range batch {
		fp := parser.Fingerprint(record)

		seen, err := n.store.IsMember(ctx, key, fp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen {
			continue
		}

		fresh = append(fresh, record)
		if err := n.store.Insert(ctx, key, fp); err != nil {
			errs = append(errs, err)
		}
		if n.mirror && target != models.TargetAll {
			if err := n.store.Insert(ctx, store.SeenKey(models.TargetAll), fp); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return fresh, errors.Join(errs...)
}

// Count returns the cardinality of the target's set.
func (n *Novelty) Count(ctx context.Context, target models.TargetID) (int64, error) {
	return n.store.Cardinality(ctx, store.SeenKey(target))
}

// Reset forgets every fingerprint of target. Every record on the next scan
// will be reported as new; only operators call this.
func (n *Novelty) Reset(ctx context.Context, target models.TargetID) error {
	slog.Warn("resetting novelty set", slog.String("target", string(target)))
	return n.store.Delete(ctx, store.SeenKey(target))
}
