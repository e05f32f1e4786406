// Package history persists orchestration runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/muurk/forcedmode/internal/orchestrate"
)

// Run outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeBusy   = "busy"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultLimit is used by List when limit is not positive.
const DefaultLimit = 20

// Run is the record of one orchestration request.
type Run struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	DeviceID  string `json:"device_id"`
	Outcome   string `json:"outcome"`
	// FailedTransition is set when Outcome is "failed".
	FailedTransition string             `json:"failed_transition,omitempty"`
	Error            string             `json:"error,omitempty"`
	Steps            []orchestrate.Step `json:"steps"`
	StartedAt        time.Time          `json:"started_at"`
	DurationMS       int64              `json:"duration_ms"`
}

// NewRun starts a record for a request.
func NewRun(requestID, deviceID string) Run {
	return Run{
		ID:        uuid.New().String(),
		RequestID: requestID,
		DeviceID:  deviceID,
		Steps:     []orchestrate.Step{},
		StartedAt: time.Now().UTC(),
	}
}

// Finish sets the outcome and duration.
func (r *Run) Finish(outcome string, err error) {
	r.Outcome = outcome
	if err != nil {
		r.Error = err.Error()
	}
	r.DurationMS = time.Since(r.StartedAt).Milliseconds()
}

// Store records runs. A nil *Store discards everything, so callers need no
// special case when history is disabled.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	request_id        TEXT NOT NULL,
	device_id         TEXT NOT NULL,
	outcome           TEXT NOT NULL,
	failed_transition TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	steps             TEXT NOT NULL,
	started_at        INTEGER NOT NULL,
	duration_ms       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at DESC);
`

// Open opens (creating if needed) the database at path. Use MemoryPath for
// an in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if path == MemoryPath {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished run.
func (s *Store) Record(ctx context.Context, run Run) error {
	if s == nil {
		return nil
	}
	if run.ID == "" {
		return errors.New("run has no id")
	}

	steps := run.Steps
	if steps == nil {
		steps = []orchestrate.Step{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, request_id, device_id, outcome, failed_transition, error, steps, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RequestID, run.DeviceID, run.Outcome, run.FailedTransition, run.Error,
		string(stepsJSON), run.StartedAt.UnixNano(), run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if s == nil {
		return []Run{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, device_id, outcome, failed_transition, error, steps, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []Run{}
	for rows.Next() {
		var (
			run       Run
			stepsJSON string
			started   int64
		)
		if err := rows.Scan(&run.ID, &run.RequestID, &run.DeviceID, &run.Outcome,
			&run.FailedTransition, &run.Error, &stepsJSON, &started, &run.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of run %s: %w", run.ID, err)
		}
		run.StartedAt = time.Unix(0, started).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Count returns the number of stored runs per outcome.
func (s *Store) Count(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	if s == nil {
		return counts, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
