package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Config options for the postgres queue
type Config struct {
	MaxAttempts  int           // attempt bound before a job is failed (default 3)
	LeaseTimeout time.Duration // visibility timeout for leased jobs (default 30s)
	RetryBackoff time.Duration // base backoff between attempts, doubled per attempt (default 1s)
	PollInterval time.Duration // dequeue poll interval (default 250ms)
}

// Queue implements mediaingest.JobQueue on PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never contend on the same
// row; lease expiry is tracked in a timestamp column, making jobs from
// crashed workers redeliverable.
//
// Schema: see migrations/postgres/001_init.sql (ingest_job table).
type Queue struct {
	db  DBTX
	cfg Config
}

// New creates a new PostgreSQL queue
func New(db DBTX, cfg Config) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Queue{db: db, cfg: cfg}
}

// NewWithPool creates a new PostgreSQL queue with a connection pool
func NewWithPool(pool *pgxpool.Pool, cfg Config) *Queue {
	return New(pool, cfg)
}

// Enqueue submits a job. Resubmitting a pending, leased or completed key
// is a no-op; a terminally failed key is reset with a fresh attempt budget,
// making resubmission the explicit repair path for work that burned its
// bound, including jobs retired by lease expiry whose asset state was never
// written.
func (q *Queue) Enqueue(ctx context.Context, job mediaingest.Job) error {
	query := `
		INSERT INTO ingest_job (key, kind, asset_id, file_name, status, attempts, not_before, enqueued_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, now(), $5)
		ON CONFLICT (key) DO UPDATE
		SET status = 'pending', attempts = 0, lease_token = NULL,
		    last_error = NULL, not_before = now()
		WHERE ingest_job.status = 'failed'`

	_, err := q.db.Exec(ctx, query, job.Key, string(job.Kind), job.AssetID, job.FileName, job.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.Key, err)
	}
	return nil
}

// Dequeue blocks until a job is claimable or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*mediaingest.Job, error) {
	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

// claim leases one deliverable job: pending past its backoff, or leased
// past its lease expiry. Expired redeliveries count as attempts; a job that
// exhausts its bound through expiries alone is failed by the next claim.
func (q *Queue) claim(ctx context.Context) (*mediaingest.Job, error) {
	// Retire jobs that burned their attempt bound on expired leases.
	retire := `
		UPDATE ingest_job
		SET status = 'failed', last_error = 'lease expired', lease_token = NULL
		WHERE status = 'leased' AND lease_expires_at <= now() AND attempts + 1 >= $1`
	if _, err := q.db.Exec(ctx, retire, q.cfg.MaxAttempts); err != nil {
		return nil, fmt.Errorf("failed to retire expired jobs: %w", err)
	}

	token := uuid.NewString()
	query := `
		UPDATE ingest_job
		SET status = 'leased',
		    lease_token = $1,
		    lease_expires_at = now() + $2,
		    attempts = CASE WHEN status = 'leased' THEN attempts + 1 ELSE attempts END
		WHERE key = (
			SELECT key FROM ingest_job
			WHERE (status = 'pending' AND not_before <= now())
			   OR (status = 'leased' AND lease_expires_at <= now())
			ORDER BY enqueued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING key, kind, asset_id, file_name, attempts, enqueued_at`

	var (
		job  mediaingest.Job
		kind string
	)
	err := q.db.QueryRow(ctx, query, token, q.cfg.LeaseTimeout).Scan(
		&job.Key, &kind, &job.AssetID, &job.FileName, &job.Attempts, &job.EnqueuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Kind = mediaingest.JobKind(kind)
	job.LeaseToken = token
	return &job, nil
}

// Renew validates and extends the caller's lease.
func (q *Queue) Renew(ctx context.Context, key, leaseToken string) error {
	query := `
		UPDATE ingest_job
		SET lease_expires_at = now() + $3
		WHERE key = $1 AND status = 'leased' AND lease_token = $2 AND lease_expires_at > now()`

	tag, err := q.db.Exec(ctx, query, key, leaseToken, q.cfg.LeaseTimeout)
	if err != nil {
		return fmt.Errorf("failed to renew lease for %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return q.staleError(ctx, key)
	}
	return nil
}

// Complete marks the job terminally done.
func (q *Queue) Complete(ctx context.Context, key, leaseToken string) error {
	query := `
		UPDATE ingest_job
		SET status = 'completed', lease_token = NULL, completed_at = now()
		WHERE key = $1 AND status = 'leased' AND lease_token = $2 AND lease_expires_at > now()`

	tag, err := q.db.Exec(ctx, query, key, leaseToken)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return q.staleError(ctx, key)
	}
	return nil
}

// Fail records a failed attempt, retrying with exponential backoff until
// the attempt bound is exhausted.
func (q *Queue) Fail(ctx context.Context, key, leaseToken string, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	query := `
		UPDATE ingest_job
		SET attempts = attempts + 1,
		    lease_token = NULL,
		    last_error = $3,
		    status = CASE WHEN attempts + 1 >= $4 THEN 'failed' ELSE 'pending' END,
		    not_before = now() + $5 * (1 << least(attempts, 16))
		WHERE key = $1 AND status = 'leased' AND lease_token = $2 AND lease_expires_at > now()
		RETURNING status`

	var status string
	err := q.db.QueryRow(ctx, query, key, leaseToken, msg, q.cfg.MaxAttempts, q.cfg.RetryBackoff).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, q.staleError(ctx, key)
		}
		return false, fmt.Errorf("failed to record job failure %s: %w", key, err)
	}
	return status == "failed", nil
}

// staleError distinguishes an unknown key from a lost lease.
func (q *Queue) staleError(ctx context.Context, key string) error {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ingest_job WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to inspect job %s: %w", key, err)
	}
	if !exists {
		return mediaingest.ErrJobNotFound
	}
	return mediaingest.ErrLeaseExpired
}
