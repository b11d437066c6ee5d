package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	target      TEXT NOT NULL,
	name        TEXT NOT NULL,
	industry    TEXT NOT NULL,
	country     TEXT NOT NULL,
	description TEXT NOT NULL,
	detail_url  TEXT NOT NULL,
	detected_at TEXT NOT NULL,
	PRIMARY KEY (target, detail_url)
);`

// SQLiteSink stores records in a records table. The first detection of a
// detail URL per target is kept.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates the records table on db. The handle is shared and
// is not closed by the sink.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if _, err := db.Exec(recordsSchema); err != nil {
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts records in one transaction.
func (s *SQLiteSink) Append(ctx context.Context, target models.TargetID, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO records (target, name, industry, country, description, detail_url, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			string(target), r.Name, r.Industry, r.Country, r.Description, r.DetailURL,
			r.DetectedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.DetailURL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the stored records of target.
func (s *SQLiteSink) Count(ctx context.Context, target models.TargetID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE target = ?`, string(target)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close is a no-op; the database belongs to the store.
func (s *SQLiteSink) Close() error {
	return nil
}
