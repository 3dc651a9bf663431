package artifact

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteSink keeps artifacts in a single SQLite table. It is the audit-log
// alternative to a directory of timestamped files.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at dsn.
func NewSQLiteSink(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: open: %w", err)
	}

	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitesink: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitesink: create schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Write stores a. Create mode relies on the primary key: a conflicting
// insert changes no rows and reports ErrExists.
func (s *SQLiteSink) Write(ctx context.Context, a Artifact) error {
	a, err := prepare(a)
	if err != nil {
		return err
	}
	created := a.CreatedAt.UTC().Format(time.RFC3339Nano)

	query := `INSERT INTO artifacts (key, kind, content_type, data, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT(key) DO NOTHING`
	if a.Mode == ModeReplace {
		query = `INSERT INTO artifacts (key, kind, content_type, data, created_at, updated_at)
		         VALUES (?, ?, ?, ?, ?, ?)
		         ON CONFLICT(key) DO UPDATE SET
		             kind = excluded.kind,
		             content_type = excluded.content_type,
		             data = excluded.data,
		             updated_at = excluded.updated_at`
	}

	res, err := s.db.ExecContext(ctx, query,
		a.Key, string(a.Kind), a.ContentType, a.Data, created, created)
	if err != nil {
		return fmt.Errorf("sqlitesink: write %s: %w", a.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitesink: write %s: %w", a.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlitesink: %s: %w", a.Key, ErrExists)
	}
	return nil
}

// Get fetches one artifact by key.
func (s *SQLiteSink) Get(ctx context.Context, key string) (Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, kind, content_type, data, created_at FROM artifacts WHERE key = ?`, key)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("sqlitesink: %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("sqlitesink: get %s: %w", key, err)
	}
	return a, nil
}

// List returns matching artifacts ordered by key.
func (s *SQLiteSink) List(ctx context.Context, f Filter) ([]Artifact, error) {
	query := `SELECT key, kind, content_type, data, created_at FROM artifacts`
	var args []any
	if f.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(f.Kind))
	}
	query += ` ORDER BY key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: list: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitesink: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(sc scanner) (Artifact, error) {
	var (
		a       Artifact
		kind    string
		created string
	)
	if err := sc.Scan(&a.Key, &kind, &a.ContentType, &a.Data, &created); err != nil {
		return Artifact{}, err
	}
	a.Kind = Kind(kind)
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Artifact{}, fmt.Errorf("parse time %q: %w", created, err)
	}
	a.CreatedAt = t
	return a, nil
}

var _ Store = (*SQLiteSink)(nil)
