package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/carenav/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS retrievals (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		host TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_retrievals_created ON retrievals(created_at);
	CREATE INDEX IF NOT EXISTS idx_retrievals_kind_outcome ON retrievals(kind, outcome);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordRetrieval appends one audit event.
func (s *SQLiteStore) RecordRetrieval(ctx context.Context, ev domain.RetrievalEvent) error {
	query := `
	INSERT INTO retrievals (id, kind, host, outcome, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, string(ev.Kind), ev.Host, ev.Outcome,
		ev.DurationMS, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert retrieval: %w", err)
	}
	return nil
}

// OutcomeCounts summarizes events by kind and outcome.
func (s *SQLiteStore) OutcomeCounts(ctx context.Context, since time.Time) ([]domain.OutcomeCount, error) {
	query := `
		SELECT kind, outcome, COUNT(*)
		FROM retrievals WHERE created_at >= ?
		GROUP BY kind, outcome
		ORDER BY kind, outcome`

	rows, err := s.db.QueryContext(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close outcome count rows", "error", closeErr)
		}
	}()

	var counts []domain.OutcomeCount
	for rows.Next() {
		var c domain.OutcomeCount
		var kind string
		if err := rows.Scan(&kind, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("scan outcome count row: %w", err)
		}
		c.Kind = domain.RetrievalKind(kind)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}

// RecentHosts returns distinct hosts of recent successful fetches, newest first.
func (s *SQLiteStore) RecentHosts(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT host FROM retrievals
		WHERE kind = ? AND outcome = ?
		GROUP BY host
		ORDER BY MAX(created_at) DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(domain.RetrievalFetch), domain.OutcomeOK, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent hosts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent host rows", "error", closeErr)
		}
	}()

	var hosts []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan recent host row: %w", err)
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent hosts: %w", err)
	}
	return hosts, nil
}

// PurgeBefore deletes events older than cutoff.
func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM retrievals WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge retrievals: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
