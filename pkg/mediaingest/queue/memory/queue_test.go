package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/queue/memory"
)

func newQueue(cfg memory.Config) *memory.Queue {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return memory.New(cfg)
}

func newJob() mediaingest.Job {
	return mediaingest.NewJob(uuid.New(), mediaingest.KindThumbnail, "a.jpg")
}

func dequeue(t *testing.T, q *memory.Queue) *mediaingest.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	return job
}

func TestEnqueueDequeue(t *testing.T) {
	q := newQueue(memory.Config{})
	job := newJob()

	require.NoError(t, q.Enqueue(context.Background(), job))

	got := dequeue(t, q)
	assert.Equal(t, job.Key, got.Key)
	assert.Equal(t, job.AssetID, got.AssetID)
	assert.NotEmpty(t, got.LeaseToken)
	assert.Zero(t, got.Attempts)
}

func TestEnqueueIdempotent(t *testing.T) {
	q := newQueue(memory.Config{})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Enqueue(ctx, job))

	assert.Equal(t, 1, q.Len())
}

func TestEnqueueCompletedKeyIsNoOp(t *testing.T) {
	q := newQueue(memory.Config{})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	got := dequeue(t, q)
	require.NoError(t, q.Complete(ctx, got.Key, got.LeaseToken))

	// Resubmitting a completed key must not resurrect the work.
	require.NoError(t, q.Enqueue(ctx, job))
	state, ok := q.JobState(job.Key)
	require.True(t, ok)
	assert.Equal(t, "completed", state)

	dequeueCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(dequeueCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDequeueBlocksUntilCancelled(t *testing.T) {
	q := newQueue(memory.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	q := newQueue(memory.Config{LeaseTimeout: 30 * time.Millisecond})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	first := dequeue(t, q)

	// Let the lease lapse; the job must come back with a fresh token and a
	// counted attempt.
	second := dequeue(t, q)
	assert.Equal(t, first.Key, second.Key)
	assert.NotEqual(t, first.LeaseToken, second.LeaseToken)
	assert.Equal(t, 1, second.Attempts)

	// The first worker's token is now dead.
	err := q.Complete(ctx, first.Key, first.LeaseToken)
	assert.ErrorIs(t, err, mediaingest.ErrLeaseExpired)
}

func TestRenewExtendsLease(t *testing.T) {
	q := newQueue(memory.Config{LeaseTimeout: 60 * time.Millisecond})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	got := dequeue(t, q)

	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, q.Renew(ctx, got.Key, got.LeaseToken))
	}

	// The lease held throughout, so completion with the original token works.
	require.NoError(t, q.Complete(ctx, got.Key, got.LeaseToken))
}

func TestFailRetriesWithBackoff(t *testing.T) {
	q := newQueue(memory.Config{MaxAttempts: 3, RetryBackoff: 20 * time.Millisecond})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	got := dequeue(t, q)

	exhausted, err := q.Fail(ctx, got.Key, got.LeaseToken, errors.New("boom"))
	require.NoError(t, err)
	assert.False(t, exhausted)

	// Not deliverable until the backoff elapses.
	quickCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	_, err = q.Dequeue(quickCtx)
	cancel()
	assert.Error(t, err)

	retried := dequeue(t, q)
	assert.Equal(t, job.Key, retried.Key)
	assert.Equal(t, 1, retried.Attempts)
}

func TestFailExhaustsAttemptBound(t *testing.T) {
	q := newQueue(memory.Config{MaxAttempts: 2, RetryBackoff: time.Millisecond})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))

	got := dequeue(t, q)
	exhausted, err := q.Fail(ctx, got.Key, got.LeaseToken, errors.New("attempt 1"))
	require.NoError(t, err)
	assert.False(t, exhausted)

	got = dequeue(t, q)
	exhausted, err = q.Fail(ctx, got.Key, got.LeaseToken, errors.New("attempt 2"))
	require.NoError(t, err)
	assert.True(t, exhausted)

	state, ok := q.JobState(job.Key)
	require.True(t, ok)
	assert.Equal(t, "failed", state)
}

func TestEnqueueRevivesFailedKey(t *testing.T) {
	q := newQueue(memory.Config{MaxAttempts: 2, RetryBackoff: time.Millisecond})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	for i := 0; i < 2; i++ {
		got := dequeue(t, q)
		_, err := q.Fail(ctx, got.Key, got.LeaseToken, errors.New("boom"))
		require.NoError(t, err)
	}
	state, _ := q.JobState(job.Key)
	require.Equal(t, "failed", state)

	// Resubmission is the repair path: the key is reset with a fresh
	// attempt budget and becomes deliverable again.
	require.NoError(t, q.Enqueue(ctx, job))
	state, _ = q.JobState(job.Key)
	assert.Equal(t, "pending", state)

	revived := dequeue(t, q)
	assert.Equal(t, job.Key, revived.Key)
	assert.Zero(t, revived.Attempts)
}

func TestLeaseExpiryExhaustionThenRevive(t *testing.T) {
	q := newQueue(memory.Config{MaxAttempts: 2, LeaseTimeout: 20 * time.Millisecond})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))

	// First delivery; the worker dies silently and the lease lapses.
	first := dequeue(t, q)
	require.Zero(t, first.Attempts)

	// Redelivery burns the second and final attempt; when that lease
	// lapses too, the next claim retires the job instead of spinning it.
	second := dequeue(t, q)
	require.Equal(t, 1, second.Attempts)

	deadCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	_, err := q.Dequeue(deadCtx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	state, _ := q.JobState(job.Key)
	require.Equal(t, "failed", state)

	// A retired key is still recoverable through resubmission.
	require.NoError(t, q.Enqueue(ctx, job))
	revived := dequeue(t, q)
	assert.Equal(t, job.Key, revived.Key)
	assert.Zero(t, revived.Attempts)
}

func TestStaleTokenRejected(t *testing.T) {
	q := newQueue(memory.Config{})
	job := newJob()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, job))
	got := dequeue(t, q)

	assert.ErrorIs(t, q.Renew(ctx, got.Key, "bogus"), mediaingest.ErrLeaseExpired)
	assert.ErrorIs(t, q.Complete(ctx, got.Key, "bogus"), mediaingest.ErrLeaseExpired)

	_, err := q.Fail(ctx, got.Key, "bogus", errors.New("x"))
	assert.ErrorIs(t, err, mediaingest.ErrLeaseExpired)

	// The real holder is unaffected.
	require.NoError(t, q.Complete(ctx, got.Key, got.LeaseToken))
}

func TestUnknownKeyRejected(t *testing.T) {
	q := newQueue(memory.Config{})
	ctx := context.Background()

	assert.ErrorIs(t, q.Complete(ctx, "nope", "token"), mediaingest.ErrJobNotFound)
	assert.ErrorIs(t, q.Renew(ctx, "nope", "token"), mediaingest.ErrJobNotFound)
}
