// SPDX-License-Identifier: MPL-2.0

// Package ledger persists one record per execution attempt and an ordered,
// append-only log stream per run, and re-broadcasts both as typed events.
//
// Status transitions are one-way: a run leaves "running" exactly once, for
// one of the three terminal statuses. Finalization is guarded by a single
// conditional UPDATE, so a late duplicate finalization (for example an exit
// event racing an error event) has no observable effect.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkdeck/inkdeck/internal/pubsub"
	"github.com/inkdeck/inkdeck/internal/store"
)

// Run status constants. StatusRunning is the only non-terminal status.
const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	// StatusCancelled marks runs terminated by an explicit cancel request
	// rather than by the process exiting on its own.
	StatusCancelled RunStatus = "cancelled"
)

// Log level constants. Stdout lines map to LevelInfo, stderr lines and
// failure narration to LevelError.
const (
	LevelInfo  LogLevel = "INFO"
	LevelError LogLevel = "ERROR"
)

// timeLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano trims
// trailing fractional zeros, which breaks lexicographic ordering of stored
// timestamps; the fixed width keeps string order chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run exists with the given id.
var ErrRunNotFound = errors.New("run not found")

type (
	// RunStatus is the lifecycle state of a run.
	RunStatus string

	// LogLevel tags a log entry by its source stream.
	LogLevel string

	// Run is one execution attempt of one script.
	Run struct {
		ID     string
		NodeID string
		// EnvID is empty for shell/powershell runs against ambient
		// interpreters.
		EnvID        string
		Status       RunStatus
		StartedAt    time.Time
		FinishedAt   *time.Time
		ExitCode     *int
		ErrorMessage string
		DurationMS   *int64
	}

	// LogEntry is one captured output line or one synthesized status line.
	LogEntry struct {
		RunID     string
		Timestamp time.Time
		Level     LogLevel
		Message   string
	}

	// LogEvent is published on every appended line.
	LogEvent struct {
		RunID string
		Entry LogEntry
	}

	// StatusEvent is published on every finalization.
	StatusEvent struct {
		RunID  string
		Status RunStatus
	}

	// Ledger persists runs and logs and feeds the two event buses.
	Ledger struct {
		db        *sql.DB
		logBus    *pubsub.Bus[LogEvent]
		statusBus *pubsub.Bus[StatusEvent]
		// appendMu keeps the insert and the publish of one log entry
		// atomic with respect to concurrent appenders, so subscribers
		// see entries in stored (seq) order.
		appendMu sync.Mutex
	}
)

// Terminal reports whether the status is one of the terminal states.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// String returns the status identifier.
func (s RunStatus) String() string { return string(s) }

// New creates a ledger over the given store.
func New(st *store.Store) *Ledger {
	return &Ledger{
		db:        st.DB(),
		logBus:    pubsub.NewBus[LogEvent](),
		statusBus: pubsub.NewBus[StatusEvent](),
	}
}

// StartRun records a new run in the running state and returns it.
func (l *Ledger) StartRun(ctx context.Context, nodeID, envID string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		EnvID:     envID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, node_id, env_id, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.NodeID, nullable(run.EnvID), string(run.Status),
		run.StartedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Append adds one log entry to the run's stream and publishes it. The two
// output scanners of a run append concurrently; the mutex makes sure the
// publish order matches the assigned seq order.
func (l *Ledger) Append(ctx context.Context, runID string, level LogLevel, message string) error {
	entry := LogEntry{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO run_logs (run_id, ts, level, message) VALUES (?, ?, ?, ?)`,
		entry.RunID, entry.Timestamp.Format(timeLayout), string(entry.Level), entry.Message)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	l.logBus.Publish(LogEvent{RunID: runID, Entry: entry})
	return nil
}

// Finalize transitions the run out of the running state. exitCode may be
// nil when the process never started. Returns true when this call performed
// the transition; a run already finalized is left untouched and no event is
// published.
func (l *Ledger) Finalize(ctx context.Context, runID string, status RunStatus, exitCode *int, errorMessage string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finalize to non-terminal status %q", status)
	}

	run, err := l.Run(ctx, runID)
	if err != nil {
		return false, err
	}

	finished := time.Now().UTC()
	duration := finished.Sub(run.StartedAt).Milliseconds()

	// The WHERE clause is the idempotence guard: only the first caller
	// observes a row change, later finalizations match nothing.
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, exit_code = ?, error_message = ?, duration_ms = ?
		WHERE id = ? AND status = ?`,
		string(status), finished.Format(timeLayout), exitCode,
		nullable(errorMessage), duration, runID, string(StatusRunning))
	if err != nil {
		return false, fmt.Errorf("finalize run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize run: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	l.statusBus.Publish(StatusEvent{RunID: runID, Status: status})
	return true, nil
}

// Run returns the run with the given id, or ErrRunNotFound.
func (l *Ledger) Run(ctx context.Context, id string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, node_id, env_id, status, started_at, finished_at,
		       exit_code, error_message, duration_ms
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunsForNode returns up to limit runs for the node, most recent first.
// A non-positive limit returns all of them.
func (l *Ledger) RunsForNode(ctx context.Context, nodeID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, node_id, env_id, status, started_at, finished_at,
		       exit_code, error_message, duration_ms
		FROM runs WHERE node_id = ?
		ORDER BY started_at DESC, id LIMIT ?`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Logs returns the run's log entries in insertion order.
func (l *Ledger) Logs(ctx context.Context, runID string) ([]LogEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, ts, level, message FROM run_logs
		WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var ts string
		if err := rows.Scan(&e.RunID, &ts, &e.Level, &e.Message); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse log timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SubscribeLogs registers a handler for every appended log entry.
func (l *Ledger) SubscribeLogs(h pubsub.Handler[LogEvent]) *pubsub.Subscription {
	return l.logBus.Subscribe(h)
}

// SubscribeStatus registers a handler for every finalization.
func (l *Ledger) SubscribeStatus(h pubsub.Handler[StatusEvent]) *pubsub.Subscription {
	return l.statusBus.Subscribe(h)
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		run                  Run
		envID, errMsg        sql.NullString
		finishedAt           sql.NullString
		exitCode, durationMS sql.NullInt64
		status, startedAt    string
	)
	err := row.Scan(&run.ID, &run.NodeID, &envID, &status, &startedAt,
		&finishedAt, &exitCode, &errMsg, &durationMS)
	if err != nil {
		return nil, err
	}

	run.EnvID = envID.String
	run.Status = RunStatus(status)
	run.ErrorMessage = errMsg.String
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		run.ExitCode = &c
	}
	if durationMS.Valid {
		d := durationMS.Int64
		run.DurationMS = &d
	}
	return &run, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
