// Package queue implements a durable, at-least-once job queue for the
// ingestion pipeline, backed by the same SQLite database as the metadata
// store. One bookmark has at most one active job: re-enqueueing while a job
// is queued or running coalesces into it.
package queue

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// Job states.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateDone    = "done"
	StateDead    = "dead"
)

// DefaultMaxAttempts is how many times a job runs before dead-lettering.
const DefaultMaxAttempts = 4

// Job is one unit of pipeline work: process a bookmark end to end.
type Job struct {
	ID         uuid.UUID
	BookmarkID uuid.UUID
	State      string
	Attempts   int
	RunAt      time.Time
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Queue is the SQLite-backed job queue.
type Queue struct {
	db          *sql.DB
	maxAttempts int
	retryCfg    mserrors.RetryConfig
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	bookmark_id TEXT NOT NULL,
	state       TEXT NOT NULL DEFAULT 'queued',
	attempts    INTEGER NOT NULL DEFAULT 0,
	run_at      TIMESTAMP NOT NULL,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active
	ON jobs(bookmark_id) WHERE state IN ('queued', 'running');
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(state, run_at);
`

// New creates a queue over the shared database handle, applying its schema.
func New(db *sql.DB, maxAttempts int, retryCfg mserrors.RetryConfig) (*Queue, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if _, err := db.Exec(queueSchema); err != nil {
		return nil, mserrors.StorageError("failed to apply queue schema", err)
	}
	return &Queue{db: db, maxAttempts: maxAttempts, retryCfg: retryCfg}, nil
}

// Enqueue schedules pipeline work for a bookmark. If an active job already
// exists for it the call coalesces into that job and reports created=false.
func (q *Queue) Enqueue(ctx context.Context, bookmarkID uuid.UUID) (created bool, err error) {
	now := time.Now().UTC()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, bookmark_id, state, attempts, run_at, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)`,
		uuid.NewString(), bookmarkID.String(), StateQueued, now, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil // coalesced into the active job
		}
		return false, mserrors.StorageError("failed to enqueue job", err)
	}
	return true, nil
}

// Claim atomically takes the next due queued job and marks it running.
// Returns nil when no job is due.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mserrors.StorageError("failed to begin claim transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		SELECT id, bookmark_id, state, attempts, run_at, last_error, created_at, updated_at
		FROM jobs
		WHERE state = ? AND run_at <= ?
		ORDER BY run_at
		LIMIT 1`, StateQueued, now)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.State = StateRunning
	job.Attempts++
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET state = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		StateRunning, job.Attempts, now, job.ID.String())
	if err != nil {
		return nil, mserrors.StorageError("failed to claim job", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mserrors.StorageError("failed to commit claim", err)
	}
	return job, nil
}

// Complete marks a running job done.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, last_error = '', updated_at = ? WHERE id = ?`,
		StateDone, time.Now().UTC(), jobID.String())
	if err != nil {
		return mserrors.StorageError("failed to complete job", err)
	}
	return nil
}

// Fail records a job failure. Retryable failures reschedule the job with
// exponential backoff until maxAttempts is reached. Terminal failures and
// exhausted jobs are dead-lettered.
func (q *Queue) Fail(ctx context.Context, job *Job, failure error) error {
	now := time.Now().UTC()
	reason := ""
	if failure != nil {
		reason = failure.Error()
	}

	if !mserrors.IsRetryable(failure) || job.Attempts >= q.maxAttempts {
		_, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET state = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			StateDead, reason, now, job.ID.String())
		if err != nil {
			return mserrors.StorageError("failed to dead-letter job", err)
		}
		return nil
	}

	// Attempt n gets the nth backoff step.
	delay := mserrors.NextDelay(q.retryCfg, job.Attempts-1)
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, last_error = ?, run_at = ?, updated_at = ? WHERE id = ?`,
		StateQueued, reason, now.Add(delay), now, job.ID.String())
	if err != nil {
		return mserrors.StorageError("failed to reschedule job", err)
	}
	return nil
}

// Get fetches one job by ID.
func (q *Queue) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, bookmark_id, state, attempts, run_at, last_error, created_at, updated_at
		FROM jobs WHERE id = ?`, jobID.String())

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, mserrors.New(mserrors.ErrCodeNotFound, "job not found: "+jobID.String(), nil)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// DeadLetters returns jobs that exhausted their attempts or failed
// terminally, newest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		SELECT id, bookmark_id, state, attempts, run_at, last_error, created_at, updated_at
		FROM jobs WHERE state = ? ORDER BY updated_at DESC`
	args := []any{StateDead}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mserrors.StorageError("failed to list dead letters", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Counts returns the number of jobs per state.
func (q *Queue) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, mserrors.StorageError("failed to count jobs", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, mserrors.StorageError("failed to scan job count", err)
		}
		out[state] = n
	}
	return out, rows.Err()
}

// RecoverStale requeues running jobs older than the given age. Used at
// worker startup to reclaim jobs orphaned by a crash; at-least-once
// delivery makes the rerun safe.
func (q *Queue) RecoverStale(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, run_at = ?, updated_at = ?
		WHERE state = ? AND updated_at < ?`,
		StateQueued, time.Now().UTC(), time.Now().UTC(), StateRunning, cutoff)
	if err != nil {
		return 0, mserrors.StorageError("failed to recover stale jobs", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job      Job
		id, bmID string
	)
	err := row.Scan(&id, &bmID, &job.State, &job.Attempts, &job.RunAt, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, mserrors.StorageError("failed to scan job", err)
	}
	job.ID, _ = uuid.Parse(id)
	job.BookmarkID, _ = uuid.Parse(bmID)
	return &job, nil
}

// StatusSetter is the slice of the metadata store the queue needs to reset
// a bookmark before retrying it.
type StatusSetter interface {
	SetStatus(ctx context.Context, id uuid.UUID, to bookmark.Status, reason string) error
}

// EnqueueForRetry resets a failed bookmark to pending and schedules a fresh
// job for it. Used by the CLI to retry dead-lettered bookmarks.
func (q *Queue) EnqueueForRetry(ctx context.Context, store StatusSetter, bookmarkID uuid.UUID) error {
	if err := store.SetStatus(ctx, bookmarkID, bookmark.StatusPending, ""); err != nil {
		return err
	}
	_, err := q.Enqueue(ctx, bookmarkID)
	return err
}
