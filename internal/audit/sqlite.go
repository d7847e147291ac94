package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	schemaVersion      = 1
	defaultBusyTimeout = 5000 // milliseconds
)

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		ts            TEXT    NOT NULL,
		tenant_id     TEXT    NOT NULL,
		op            TEXT    NOT NULL,
		task_id       TEXT    NOT NULL DEFAULT '',
		episode_count INTEGER,
		path          TEXT    NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_log(tenant_id, id)`,
}

// SQLiteSink records entries to a SQLite database, keeping the audit
// trail queryable after the fact.
type SQLiteSink struct {
	db *sql.DB
}

var _ Sink = (*SQLiteSink)(nil)

// OpenSQLite opens a SQLite-backed audit sink at path, creating the
// database if needed.
//
// The database is opened with WAL mode, a 5 s busy timeout, and a single
// connection (SQLite serialises writes). The schema is migrated
// automatically.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: enable WAL: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteSink{db: db}, nil
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("audit: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("audit: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("audit: record schema version: %w", err)
	}

	return nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(ctx context.Context, e Entry) error {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}

	var count any
	if e.EpisodeCount != nil {
		count = *e.EpisodeCount
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, tenant_id, op, task_id, episode_count, path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.TS, e.TenantID, e.Op, e.TaskID, count, e.Path,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Recent returns the n most recent entries in chronological order.
// An empty tenantID matches all tenants.
func (s *SQLiteSink) Recent(ctx context.Context, tenantID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT ts, tenant_id, op, task_id, episode_count, path
		FROM audit_log`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			count sql.NullInt64
		)
		if err := rows.Scan(&e.TS, &e.TenantID, &e.Op, &e.TaskID, &count, &e.Path); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if count.Valid {
			e.EpisodeCount = Count(int(count.Int64))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}

	// Reverse to chronological order.
	slices.Reverse(entries)
	return entries, nil
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
