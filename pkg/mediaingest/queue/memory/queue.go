package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// Job states.
const (
	statePending   = "pending"
	stateLeased    = "leased"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

// Config options for the in-memory queue
type Config struct {
	MaxAttempts  int           // attempt bound before a job is failed (default 3)
	LeaseTimeout time.Duration // visibility timeout for leased jobs (default 30s)
	RetryBackoff time.Duration // base backoff between attempts, doubled per attempt (default 1s)
	PollInterval time.Duration // dequeue poll interval (default 50ms)
}

type record struct {
	job          mediaingest.Job
	state        string
	attempts     int
	leaseToken   string
	leaseExpires time.Time
	notBefore    time.Time
	lastError    string
}

// Queue implements mediaingest.JobQueue in memory. Jobs are deduplicated by
// key across all states, delivered at least once, and bounded by a lease
// timeout and attempt count.
type Queue struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*record
}

// New creates a new in-memory queue
func New(cfg Config) *Queue {
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
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Queue{
		cfg:     cfg,
		records: make(map[string]*record),
	}
}

// Enqueue submits a job. A key that is queued, leased or completed is a
// no-op, which makes orchestrator retries after partial failures safe. A
// terminally failed key is reset with a fresh attempt budget: resubmission
// is the explicit repair path for work that burned its bound, including
// jobs retired by lease expiry whose asset state was never written.
func (q *Queue) Enqueue(ctx context.Context, job mediaingest.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rec, exists := q.records[job.Key]; exists {
		if rec.state != stateFailed {
			return nil
		}
		rec.state = statePending
		rec.attempts = 0
		rec.leaseToken = ""
		rec.notBefore = time.Time{}
		rec.lastError = ""
		return nil
	}

	jobCopy := job
	q.records[job.Key] = &record{
		job:   jobCopy,
		state: statePending,
	}
	return nil
}

// Dequeue blocks until a job is claimable or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*mediaingest.Job, error) {
	for {
		if job := q.claim(); job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

// claim finds one deliverable job: pending past its backoff, or leased with
// an expired lease (redelivery). Expired redeliveries count as attempts so
// a crash-looping worker cannot spin a job forever.
func (q *Queue) claim() *mediaingest.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for _, rec := range q.records {
		switch rec.state {
		case statePending:
			if rec.notBefore.After(now) {
				continue
			}
		case stateLeased:
			if rec.leaseExpires.After(now) {
				continue
			}
			rec.attempts++
			if rec.attempts >= q.cfg.MaxAttempts {
				rec.state = stateFailed
				rec.lastError = "lease expired"
				continue
			}
		default:
			continue
		}

		rec.state = stateLeased
		rec.leaseToken = uuid.NewString()
		rec.leaseExpires = now.Add(q.cfg.LeaseTimeout)

		job := rec.job
		job.Attempts = rec.attempts
		job.LeaseToken = rec.leaseToken
		return &job
	}
	return nil
}

// holder returns the record iff the caller's lease is live.
func (q *Queue) holder(key, leaseToken string) (*record, error) {
	rec, exists := q.records[key]
	if !exists {
		return nil, mediaingest.ErrJobNotFound
	}
	if rec.state != stateLeased || rec.leaseToken != leaseToken || rec.leaseExpires.Before(time.Now()) {
		return nil, mediaingest.ErrLeaseExpired
	}
	return rec, nil
}

// Renew validates and extends the caller's lease.
func (q *Queue) Renew(ctx context.Context, key, leaseToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.holder(key, leaseToken)
	if err != nil {
		return err
	}
	rec.leaseExpires = time.Now().Add(q.cfg.LeaseTimeout)
	return nil
}

// Complete marks the job terminally done.
func (q *Queue) Complete(ctx context.Context, key, leaseToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.holder(key, leaseToken)
	if err != nil {
		return err
	}
	rec.state = stateCompleted
	rec.leaseToken = ""
	return nil
}

// Fail records a failed attempt, retrying with exponential backoff until
// the attempt bound is exhausted.
func (q *Queue) Fail(ctx context.Context, key, leaseToken string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.holder(key, leaseToken)
	if err != nil {
		return false, err
	}

	rec.attempts++
	rec.leaseToken = ""
	if cause != nil {
		rec.lastError = cause.Error()
	}

	if rec.attempts >= q.cfg.MaxAttempts {
		rec.state = stateFailed
		return true, nil
	}

	backoff := q.cfg.RetryBackoff << (rec.attempts - 1)
	rec.state = statePending
	rec.notBefore = time.Now().Add(backoff)
	return false, nil
}

// JobState reports the current state of a job key, for inspection and tests.
func (q *Queue) JobState(key string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, exists := q.records[key]
	if !exists {
		return "", false
	}
	return rec.state, true
}

// Len returns the number of tracked job keys.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
