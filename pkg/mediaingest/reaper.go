package mediaingest

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Reaper removes on-disk and in-store artifacts that no longer belong to a
// live asset: stale temp files left by crashed uploads, and the stored
// objects of soft-deleted assets. It runs off the request path.
type Reaper struct {
	repository Repository
	store      BlobStore
	temp       *TempStore
	interval   time.Duration
	tempTTL    time.Duration
	gracePeriod time.Duration
	batchSize  int
	logger     *slog.Logger
}

// ReaperOption represents a functional option for configuring the reaper
type ReaperOption func(*Reaper)

// WithInterval sets how often the reaper sweeps (default 1m)
func WithInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		r.interval = d
	}
}

// WithTempTTL sets the age after which an unattached temp file is removed
// (default 1h)
func WithTempTTL(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		r.tempTTL = d
	}
}

// WithGracePeriod sets how long after soft delete an asset's files are kept
// before physical removal (default 0)
func WithGracePeriod(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		r.gracePeriod = d
	}
}

// WithReaperLogger sets the logger for the reaper
func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		r.logger = logger
	}
}

// NewReaper creates a reaper over the given registry, blob store and temp
// store.
func NewReaper(repository Repository, store BlobStore, temp *TempStore, options ...ReaperOption) *Reaper {
	r := &Reaper{
		repository: repository,
		store:      store,
		temp:       temp,
		interval:   time.Minute,
		tempTTL:    time.Hour,
		batchSize:  100,
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: purge soft-deleted assets, then clear stale temp
// files. Exported so a reconciliation job can trigger it directly.
func (r *Reaper) Sweep(ctx context.Context) {
	if err := r.purgeDeleted(ctx); err != nil {
		r.logger.Error("purge sweep failed", "error", err)
	}
	if r.temp != nil {
		if removed, err := r.temp.SweepStale(r.tempTTL); err != nil {
			r.logger.Error("temp sweep failed", "error", err)
		} else if removed > 0 {
			r.logger.Info("removed stale temp files", "count", removed)
		}
	}
}

// purgeDeleted removes the stored object and every derived artifact of each
// purgeable asset, then hard-removes the record. The record is only removed
// after all artifacts are gone, so a partial sweep retries on the next pass.
func (r *Reaper) purgeDeleted(ctx context.Context) error {
	cutoff := time.Now().Add(-r.gracePeriod)
	assets, err := r.repository.ListPurgeable(ctx, cutoff, r.batchSize)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		if err := r.purgeOne(ctx, asset); err != nil {
			r.logger.Warn("failed to purge asset, will retry",
				"asset_id", asset.ID, "error", err)
		}
	}
	return nil
}

func (r *Reaper) purgeOne(ctx context.Context, asset *Asset) error {
	for variant, key := range asset.Artifacts {
		if err := r.deleteBlob(ctx, key); err != nil {
			return &StorageError{Key: key, Op: "reap " + variant, Err: err}
		}
	}
	if asset.StorageKey != "" {
		if err := r.deleteBlob(ctx, asset.StorageKey); err != nil {
			return &StorageError{Key: asset.StorageKey, Op: "reap", Err: err}
		}
	}

	if err := r.repository.PurgeAsset(ctx, asset.ID); err != nil {
		return err
	}

	r.logger.Info("purged asset", "asset_id", asset.ID, "artifacts", len(asset.Artifacts))
	return nil
}

func (r *Reaper) deleteBlob(ctx context.Context, key string) error {
	err := r.store.Delete(ctx, key)
	if err == nil || errors.Is(err, ErrBlobNotFound) {
		return nil
	}
	return err
}
