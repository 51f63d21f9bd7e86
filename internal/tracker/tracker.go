// Package tracker persists the last-processed-commit marker and the pipeline
// run history in SQLite.
//
// The marker is the idempotency guard for the whole pipeline: a commit is
// marked processed only after the full chain (trigger, poll, submit, accept)
// has succeeded. If the store is unreadable or corrupt the tracker reports
// "no prior commit" instead of failing: duplicate work is safer than silently
// skipping new commits. That is a deliberate policy, not an accident.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// Tracker manages the commit marker and run history in SQLite.
type Tracker struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the tracker database. A damaged store is moved aside
// and replaced with a fresh one: the pipeline must keep running toward
// re-processing, never abort because its own bookkeeping rotted.
func New(dbPath string, logger *slog.Logger) (*Tracker, error) {
	t, err := open(dbPath, logger)
	if err == nil {
		return t, nil
	}

	// Only attempt recovery when there is an existing file to blame.
	if _, statErr := os.Stat(dbPath); statErr != nil {
		return nil, err
	}

	backup := dbPath + ".corrupt"
	if logger != nil {
		logger.Warn("Tracker store unusable, moving it aside and starting fresh",
			"path", dbPath, "backup", backup, "error", err)
	}
	if renameErr := os.Rename(dbPath, backup); renameErr != nil {
		return nil, fmt.Errorf("failed to move damaged store aside: %w", renameErr)
	}

	return open(dbPath, logger)
}

func open(dbPath string, logger *slog.Logger) (*Tracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t := &Tracker{db: db, logger: logger}

	if err := t.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return t, nil
}

// Close closes the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}

func (t *Tracker) initSchema() error {
	_, err := t.db.Exec(`
		CREATE TABLE IF NOT EXISTS marker (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			commit_hash TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create marker table: %w", err)
	}

	_, err = t.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			commit_hash TEXT NOT NULL,
			build_number INTEGER,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = t.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// LastProcessed returns the commit hash of the most recently processed commit,
// or empty string when nothing has been processed yet. Read failures are
// absorbed: the pipeline re-processes rather than aborts.
func (t *Tracker) LastProcessed(ctx context.Context) string {
	var hash string
	err := t.db.QueryRowContext(ctx, `SELECT commit_hash FROM marker WHERE id = 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return ""
	}
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("Tracker state unreadable, treating as no prior commit", "error", err)
		}
		return ""
	}
	return hash
}

// HasNewCommit compares the remote latest commit against the persisted marker.
func (t *Tracker) HasNewCommit(ctx context.Context, remoteLatest string) bool {
	if remoteLatest == "" {
		return false
	}
	return remoteLatest != t.LastProcessed(ctx)
}

// MarkProcessed overwrites the persisted marker. Called at exactly one point:
// after the entire pipeline chain has succeeded.
func (t *Tracker) MarkProcessed(ctx context.Context, commitHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO marker (id, commit_hash, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET commit_hash = excluded.commit_hash, updated_at = excluded.updated_at
	`, commitHash, now)
	if err != nil {
		return fmt.Errorf("failed to update commit marker: %w", err)
	}
	return nil
}

// RecordRun records a pipeline run in the history.
func (t *Tracker) RecordRun(ctx context.Context, record *RunRecord) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	started := record.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	} else if record.Status != "in_progress" {
		completedAt = &now
	}

	result, err := t.db.ExecContext(ctx, `
		INSERT INTO runs
		(commit_hash, build_number, status, stage, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		record.CommitHash,
		record.BuildNumber,
		record.Status,
		record.Stage,
		started.Format(time.RFC3339),
		completedAt,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// LatestRun returns the most recent pipeline run, or nil when none exist.
func (t *Tracker) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT id, commit_hash, build_number, status, stage, started_at, completed_at, error_message
		FROM runs
		ORDER BY id DESC
		LIMIT 1
	`)

	record, err := scanRunRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	return record, nil
}

// RunHistory returns the most recent pipeline runs, newest first.
func (t *Tracker) RunHistory(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, commit_hash, build_number, status, stage, started_at, completed_at, error_message
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRunRecord(s scanner) (*RunRecord, error) {
	var record RunRecord
	var buildNumber sql.NullInt64
	var startedAtStr string
	var completedAtStr sql.NullString
	var errorMessage sql.NullString

	err := s.Scan(
		&record.ID,
		&record.CommitHash,
		&buildNumber,
		&record.Status,
		&record.Stage,
		&startedAtStr,
		&completedAtStr,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if buildNumber.Valid {
		record.BuildNumber = &buildNumber.Int64
	}
	if errorMessage.Valid {
		record.ErrorMessage = &errorMessage.String
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}
