package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/store"
)

// MaxHistory bounds every history list.
const MaxHistory = 100

// History appends run outcomes to bounded lists. Write failures are logged
// and never returned: losing a history entry must not fail a job.
type History struct {
	store store.Store
	now   func() time.Time
}

// NewHistory builds a recorder on s.
func NewHistory(s store.Store) *History {
	return &History{store: s, now: time.Now}
}

// RecordSuccess appends a completed job to the target's history.
func (h *History) RecordSuccess(ctx context.Context, target models.TargetID, page, found, fresh int) {
	h.push(ctx, store.HistoryKey(target), models.HistoryEntry{
		Target:       target,
		Page:         page,
		RecordsFound: found,
		NewRecords:   fresh,
		Status:       models.StatusSuccess,
		Timestamp:    h.now().UnixMilli(),
	})
}

// RecordError appends a failed job to the global error history.
func (h *History) RecordError(ctx context.Context, target models.TargetID, page int, cause error) {
	h.push(ctx, store.ErrorHistoryKey, models.HistoryEntry{
		Target:    target,
		Page:      page,
		Status:    models.StatusError,
		Error:     cause.Error(),
		Timestamp: h.now().UnixMilli(),
	})
}

func (h *History) push(ctx context.Context, key string, entry models.HistoryEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		slog.Error("encode history entry", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := h.store.PushBounded(ctx, key, string(raw), MaxHistory); err != nil {
		slog.Warn("history write failed",
			slog.String("key", key),
			slog.String("target", string(entry.Target)),
			slog.Any("error", err),
		)
	}
}

// Recent merges the histories of targets with their error entries and
// returns the newest limit entries, newest first. Unreadable entries are
// skipped.
func (h *History) Recent(ctx context.Context, targets []models.TargetID, limit int) ([]models.HistoryEntry, error) {
	wanted := make(map[models.TargetID]bool, len(targets))
	keys := make([]string, 0, len(targets)+1)
	for _, target := range targets {
		wanted[target] = true
		keys = append(keys, store.HistoryKey(target))
	}
	keys = append(keys, store.ErrorHistoryKey)

	var entries []models.HistoryEntry
	for _, key := range keys {
		raw, err := h.store.Range(ctx, key, limit)
		if err != nil {
			return nil, err
		}
		for _, item := range raw {
			var entry models.HistoryEntry
			if err := json.Unmarshal([]byte(item), &entry); err != nil {
				slog.Debug("skipping unreadable history entry", slog.String("key", key), slog.Any("error", err))
				continue
			}
			if key == store.ErrorHistoryKey && !wanted[entry.Target] {
				continue
			}
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
