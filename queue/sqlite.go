package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-customers/models"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS queue_jobs (
	id          TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	run_at      INTEGER NOT NULL,
	lease_until INTEGER
);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_due ON queue_jobs(lease_until, run_at);`

// SQLiteQueue is a delayed job queue in a SQLite table, for deployments
// running on the SQLite store.
type SQLiteQueue struct {
	db *sql.DB
}

// NewSQLiteQueue creates the queue table on db. The handle is shared and
// is not closed by the queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	if _, err := db.Exec(jobsSchema); err != nil {
		return nil, fmt.Errorf("create queue table: %w", err)
	}
	return &SQLiteQueue{db: db}, nil
}

// Enqueue stores payload to become due at runAt.
func (q *SQLiteQueue) Enqueue(ctx context.Context, payload models.JobPayload, runAt time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queue_jobs (id, payload, run_at) VALUES (?, ?, ?)`,
		uuid.NewString(), string(raw), runAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim leases up to limit jobs due at now until now+lease in a single
// statement.
func (q *SQLiteQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Delivery, error) {
	rows, err := q.db.QueryContext(ctx,
		`UPDATE queue_jobs SET lease_until = ?
		 WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE lease_until IS NULL AND run_at <= ?
			ORDER BY run_at ASC LIMIT ?
		 )
		 RETURNING id, payload`,
		now.Add(lease).UnixMilli(), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var (
		deliveries []Delivery
		corrupt    []string
	)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		var payload models.JobPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			slog.Error("dropping undecodable job", slog.String("id", id), slog.Any("error", err))
			corrupt = append(corrupt, id)
			continue
		}
		deliveries = append(deliveries, Delivery{Envelope: Envelope{ID: id, Payload: payload}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	// The claiming statement holds the write lock until its rows are closed.
	rows.Close()

	for _, id := range corrupt {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_jobs WHERE id = ?`, id); err != nil {
			slog.Error("delete undecodable job", slog.String("id", id), slog.Any("error", err))
		}
	}
	return deliveries, nil
}

// Ack removes a handled delivery.
func (q *SQLiteQueue) Ack(ctx context.Context, d Delivery) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_jobs WHERE id = ?`, d.ID); err != nil {
		return fmt.Errorf("ack job %s: %w", d.ID, err)
	}
	return nil
}

// RecoverExpired requeues deliveries whose lease ran out before now.
func (q *SQLiteQueue) RecoverExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE queue_jobs SET lease_until = NULL, run_at = ?
		 WHERE lease_until IS NOT NULL AND lease_until <= ?`,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("recover expired jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover expired jobs: %w", err)
	}
	return int(n), nil
}

// Depth returns the number of pending and in-flight jobs.
func (q *SQLiteQueue) Depth(ctx context.Context) (pending, inflight int64, err error) {
	err = q.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN lease_until IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN lease_until IS NOT NULL THEN 1 ELSE 0 END), 0)
		 FROM queue_jobs`,
	).Scan(&pending, &inflight)
	if err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return pending, inflight, nil
}

var (
	_ Queue    = (*SQLiteQueue)(nil)
	_ Consumer = (*SQLiteQueue)(nil)
)
