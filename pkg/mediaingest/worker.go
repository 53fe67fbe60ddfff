package mediaingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerPool pulls jobs from the work queue and dispatches them by kind to
// registered processors. Workers have no affinity: any worker may process
// any job, and jobs of different kinds for the same asset may run in
// parallel.
type WorkerPool struct {
	queue       JobQueue
	repository  Repository
	store       BlobStore
	processors  map[JobKind]Processor
	concurrency int
	logger      *slog.Logger
}

// WorkerOption represents a functional option for configuring the pool
type WorkerOption func(*WorkerPool)

// WithConcurrency sets the number of concurrent workers (default 4)
func WithConcurrency(n int) WorkerOption {
	return func(p *WorkerPool) {
		p.concurrency = n
	}
}

// WithProcessor registers a processor for its job kind
func WithProcessor(proc Processor) WorkerOption {
	return func(p *WorkerPool) {
		p.processors[proc.Kind()] = proc
	}
}

// WithWorkerLogger sets the logger for the pool
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(p *WorkerPool) {
		p.logger = logger
	}
}

// NewWorkerPool creates a worker pool over the given queue, registry and
// blob store.
func NewWorkerPool(queue JobQueue, repository Repository, store BlobStore, options ...WorkerOption) (*WorkerPool, error) {
	p := &WorkerPool{
		queue:       queue,
		repository:  repository,
		store:       store,
		processors:  make(map[JobKind]Processor),
		concurrency: 4,
		logger:      slog.Default(),
	}

	for _, option := range options {
		option(p)
	}

	if p.queue == nil || p.repository == nil || p.store == nil {
		return nil, fmt.Errorf("queue, repository and blob store are required")
	}
	if len(p.processors) == 0 {
		return nil, fmt.Errorf("at least one processor is required")
	}
	return p, nil
}

// Kinds returns the job kinds this pool can process.
func (p *WorkerPool) Kinds() []JobKind {
	kinds := make([]JobKind, 0, len(p.processors))
	for kind := range p.processors {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Run consumes jobs until ctx is cancelled. It blocks; callers typically
// run it in a goroutine.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (p *WorkerPool) loop(ctx context.Context, worker int) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.logger.Error("dequeue failed", "worker", worker, "error", err)
			// Back off before retrying so an unreachable queue does not
			// hot-spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.handle(ctx, job)
	}
}

// handle runs one leased job to a terminal or retriable outcome.
func (p *WorkerPool) handle(ctx context.Context, job *Job) {
	proc, ok := p.processors[job.Kind]
	if !ok {
		// No processor registered: the job can never succeed here.
		p.fail(ctx, job, fmt.Errorf("no processor for kind %q", job.Kind))
		return
	}

	asset, err := p.repository.GetAsset(ctx, job.AssetID)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			// Deleted before processing; nothing left to do.
			if cerr := p.queue.Complete(ctx, job.Key, job.LeaseToken); cerr != nil && !errors.Is(cerr, ErrLeaseExpired) {
				p.logger.Warn("failed to complete job for missing asset", "job", job.Key, "error", cerr)
			}
			return
		}
		p.fail(ctx, job, err)
		return
	}

	outcome, err := proc.Process(ctx, asset, p.store)
	if err != nil {
		p.fail(ctx, job, err)
		return
	}

	// The lease must still be ours before any registry write; once it has
	// expired another worker owns this job and a late write here would
	// clobber its result.
	if err := p.queue.Renew(ctx, job.Key, job.LeaseToken); err != nil {
		if errors.Is(err, ErrLeaseExpired) {
			p.logger.Warn("lease expired after processing, discarding result",
				"job", job.Key, "asset_id", job.AssetID)
			return
		}
		p.logger.Error("lease renewal failed", "job", job.Key, "error", err)
		return
	}

	if err := p.record(ctx, asset, job, outcome); err != nil {
		p.fail(ctx, job, err)
		return
	}

	if err := p.queue.Complete(ctx, job.Key, job.LeaseToken); err != nil && !errors.Is(err, ErrLeaseExpired) {
		// The job will be redelivered; the processor is idempotent, so the
		// rerun converges on the same state.
		p.logger.Warn("failed to complete job", "job", job.Key, "error", err)
	}
}

// record persists a successful outcome: derived metadata fields, artifact
// keys, and the capability's completed state. All writes are field-scoped.
func (p *WorkerPool) record(ctx context.Context, asset *Asset, job *Job, outcome *Outcome) error {
	if outcome != nil && len(outcome.Fields) > 0 {
		if err := p.repository.MergeAssetMetadata(ctx, asset.ID, outcome.Fields); err != nil {
			return fmt.Errorf("merge metadata: %w", err)
		}
	}
	if outcome != nil {
		for variant, key := range outcome.Artifacts {
			if err := p.repository.AddAssetArtifact(ctx, asset.ID, variant, key); err != nil {
				return fmt.Errorf("record artifact %s: %w", variant, err)
			}
		}
	}

	state := ProcessingState{
		Status:    ProcessingCompleted,
		Attempts:  job.Attempts + 1,
		UpdatedAt: time.Now().UTC(),
	}
	return p.repository.SetProcessingState(ctx, asset.ID, job.Kind, state)
}

// fail reports a failed attempt to the queue and, when the attempt bound is
// exhausted, records the terminal failure on the asset. The asset itself
// stays servable.
func (p *WorkerPool) fail(ctx context.Context, job *Job, cause error) {
	p.logger.Warn("job attempt failed",
		"job", job.Key, "asset_id", job.AssetID, "attempt", job.Attempts+1, "error", cause)

	exhausted, err := p.queue.Fail(ctx, job.Key, job.LeaseToken, cause)
	if err != nil {
		if !errors.Is(err, ErrLeaseExpired) {
			p.logger.Error("failed to report job failure", "job", job.Key, "error", err)
		}
		return
	}
	if !exhausted {
		return
	}

	state := ProcessingState{
		Status:    ProcessingFailed,
		Attempts:  job.Attempts + 1,
		LastError: cause.Error(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := p.repository.SetProcessingState(ctx, job.AssetID, job.Kind, state); err != nil && !errors.Is(err, ErrAssetNotFound) {
		p.logger.Error("failed to record exhausted job", "job", job.Key, "error", err)
	}
}
