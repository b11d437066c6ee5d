package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS set_members (
    key    TEXT NOT NULL,
    member TEXT NOT NULL,
    PRIMARY KEY (key, member)
);
CREATE TABLE IF NOT EXISTS list_entries (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    key   TEXT NOT NULL,
    entry TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_list_entries_key ON list_entries(key, id);
`

// SQLiteStore implements Store on a single SQLite database file. It suits
// single-host deployments where several harvester processes share a disk.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and initialises) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the handle so sinks can share the database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return wrap("set", key, err)
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		for _, stmt := range []string{
			`DELETE FROM kv WHERE key = ?`,
			`DELETE FROM set_members WHERE key = ?`,
			`DELETE FROM list_entries WHERE key = ?`,
		} {
			if _, err := s.db.ExecContext(ctx, stmt, key); err != nil {
				return wrap("del", key, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) IsMember(ctx context.Context, setKey, member string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM set_members WHERE key = ? AND member = ?`, setKey, member,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("sismember", setKey, err)
	}
	return true, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, setKey, member string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO set_members (key, member) VALUES (?, ?)`, setKey, member,
	)
	return wrap("sadd", setKey, err)
}

func (s *SQLiteStore) Cardinality(ctx context.Context, setKey string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM set_members WHERE key = ?`, setKey,
	).Scan(&n)
	if err != nil {
		return 0, wrap("scard", setKey, err)
	}
	return n, nil
}

func (s *SQLiteStore) PushBounded(ctx context.Context, listKey, entry string, maxLen int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("lpush", listKey, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO list_entries (key, entry) VALUES (?, ?)`, listKey, entry,
	); err != nil {
		return wrap("lpush", listKey, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM list_entries WHERE key = ? AND id NOT IN (
		     SELECT id FROM list_entries WHERE key = ? ORDER BY id DESC LIMIT ?
		 )`,
		listKey, listKey, maxLen,
	); err != nil {
		return wrap("ltrim", listKey, err)
	}
	return wrap("lpush", listKey, tx.Commit())
}

func (s *SQLiteStore) Range(ctx context.Context, listKey string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM list_entries WHERE key = ? ORDER BY id DESC LIMIT ?`, listKey, limit,
	)
	if err != nil {
		return nil, wrap("lrange", listKey, err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, wrap("lrange", listKey, err)
		}
		entries = append(entries, entry)
	}
	return entries, wrap("lrange", listKey, rows.Err())
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
