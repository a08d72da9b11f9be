package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	sqliteUpsert = `
		INSERT INTO watermarks (source, published_at, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT (source) DO UPDATE SET
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`

	postgresUpsert = `
		INSERT INTO watermarks (source, published_at, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source) DO UPDATE SET
			published_at = EXCLUDED.published_at,
			updated_at = EXCLUDED.updated_at`
)

// SQLStore keeps watermarks in a "watermarks" table, one row per source.
type SQLStore struct {
	db       *sql.DB
	dialect  string
	location string
	upsert   string
}

func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps SQLite away from SQLITE_BUSY within the process.
	db.SetMaxOpenConns(1)

	return newSQLStore(ctx, db, DriverSQLite, "sqlite:"+path, sqliteUpsert)
}

func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	return newSQLStore(ctx, db, DriverPostgres, "postgres", postgresUpsert)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect, location, upsert string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	if _, err := runMigrations(db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, dialect: dialect, location: location, upsert: upsert}, nil
}

func (s *SQLStore) String() string {
	return s.location
}

func (s *SQLStore) Load(ctx context.Context) (Watermarks, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, published_at FROM watermarks`)
	if err != nil {
		return Watermarks{}, fmt.Errorf("failed to query watermarks: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var source, publishedAt string
		if err := rows.Scan(&source, &publishedAt); err != nil {
			return Watermarks{}, fmt.Errorf("failed to scan watermark row: %w", err)
		}
		raw[source] = publishedAt
	}
	if err := rows.Err(); err != nil {
		return Watermarks{}, fmt.Errorf("error iterating watermark rows: %w", err)
	}

	return parseEntries(s.location, raw)
}

// Save upserts every watermark in one transaction. Rows for sources not in
// marks are left untouched.
func (s *SQLStore) Save(ctx context.Context, marks Watermarks) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.upsert)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to prepare upsert: %w", err), tx.Rollback())
	}
	defer stmt.Close()

	for _, key := range marks.Keys() {
		if _, err := stmt.ExecContext(ctx, key, formatTimestamp(marks[key])); err != nil {
			return errors.Join(fmt.Errorf("failed to upsert watermark %s: %w", key, err), tx.Rollback())
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit watermarks: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
