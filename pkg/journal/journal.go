// Package journal records what happened during a run: task completions with
// the slots they filled, task failures the scheduler absorbed, and terminal
// transitions. It is an append-only audit trail backed by SQLite, not
// resumable job state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/me/genrun/pkg/job"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id  TEXT NOT NULL,
	task    INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	slots   TEXT NOT NULL DEFAULT '',
	detail  TEXT NOT NULL DEFAULT '',
	at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_job ON run_events(job_id);
`

// Event is one journal row.
type Event struct {
	JobID  string
	Task   int
	Kind   string // "task_completed", "task_failed", "job_finished"
	Slots  string // comma-separated slot ids, completions only
	Detail string // error text or terminal state
	At     time.Time
}

// Journal implements job.Recorder on a SQLite database.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ job.Recorder = (*Journal)(nil)

// Open opens (or creates) the journal database at path and ensures the
// schema exists. Use ":memory:" in tests.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db, logger: logger.With("component", "journal")}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// TaskCompleted records a scattered task result.
func (j *Journal) TaskCompleted(jobID string, task int, slots []int) {
	j.insert(jobID, task, "task_completed", joinSlots(slots), "")
}

// TaskFailed records an absorbed task failure.
func (j *Journal) TaskFailed(jobID string, task int, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	j.insert(jobID, task, "task_failed", "", detail)
}

// JobFinished records the terminal transition.
func (j *Journal) JobFinished(jobID string, state job.State) {
	j.insert(jobID, -1, "job_finished", "", state.String())
}

func (j *Journal) insert(jobID string, task int, kind, slots, detail string) {
	_, err := j.db.Exec(
		`INSERT INTO run_events (job_id, task, kind, slots, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, task, kind, slots, detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		// Recorder calls are fire-and-forget; a broken journal must not
		// fail the run.
		j.logger.Warn("journal write failed", "kind", kind, "job_id", jobID, "err", err)
	}
}

// Events returns every recorded event for jobID in insertion order.
func (j *Journal) Events(ctx context.Context, jobID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT job_id, task, kind, slots, detail, at FROM run_events WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&e.JobID, &e.Task, &e.Kind, &e.Slots, &e.Detail, &at); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse event time %q: %w", at, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func joinSlots(slots []int) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}
