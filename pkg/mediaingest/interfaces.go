package mediaingest

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for asset registry persistence.
type Repository interface {
	// CreateAsset inserts a new asset. It returns ErrAssetExists when a
	// non-deleted asset with the same (owner, digest) pair already exists.
	CreateAsset(ctx context.Context, asset *Asset) error

	GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error)
	GetAssetByOwnerDigest(ctx context.Context, ownerID uuid.UUID, digest string) (*Asset, error)
	ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*Asset, error)

	// SoftDeleteAsset marks the asset logically removed. Physical artifact
	// removal is deferred to the reaper.
	SoftDeleteAsset(ctx context.Context, id uuid.UUID) error

	// SetProcessingState updates the state for one capability only.
	SetProcessingState(ctx context.Context, id uuid.UUID, kind JobKind, state ProcessingState) error

	// MergeAssetMetadata merges the given fields into the asset's derived
	// metadata, field by field.
	MergeAssetMetadata(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error

	// AddAssetArtifact records one derived artifact key under a variant name.
	AddAssetArtifact(ctx context.Context, id uuid.UUID, variant, storageKey string) error

	// ListPurgeable returns soft-deleted assets eligible for physical removal.
	ListPurgeable(ctx context.Context, olderThan time.Time, limit int) ([]*Asset, error)

	// PurgeAsset hard-removes an asset record after its artifacts are reaped.
	PurgeAsset(ctx context.Context, id uuid.UUID) error
}

// BlobStore defines the interface for storage backends.
type BlobStore interface {
	// Upload stores content under the given key. A reader either sees no
	// object for a key or the fully written bytes.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download opens the content stored under the given key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content stored under the given key.
	Delete(ctx context.Context, key string) error

	// GetMeta retrieves metadata for a stored object.
	GetMeta(ctx context.Context, key string) (*BlobMeta, error)
}

// BlobMeta contains metadata about an object in storage.
type BlobMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// JobQueue defines the interface for the asynchronous work queue. Delivery
// is at-least-once; submission is idempotent by job key.
type JobQueue interface {
	// Enqueue submits a job. A key that is already queued, leased, or
	// completed is a no-op. A terminally failed key is reset with a fresh
	// attempt budget: resubmission is the repair path for exhausted work.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or ctx is done. The returned
	// job carries a lease token; the lease expires after the queue's
	// visibility timeout, making the job redeliverable.
	Dequeue(ctx context.Context) (*Job, error)

	// Renew validates and extends the caller's lease. ErrLeaseExpired means
	// the job has been handed to another worker; the caller must not write
	// any further results.
	Renew(ctx context.Context, key, leaseToken string) error

	// Complete marks the job terminally done. Returns ErrLeaseExpired for a
	// stale token.
	Complete(ctx context.Context, key, leaseToken string) error

	// Fail records a failed attempt. The job is retried with backoff until
	// the attempt bound is exhausted; exhausted reports whether this failure
	// was terminal.
	Fail(ctx context.Context, key, leaseToken string, cause error) (exhausted bool, err error)
}

// Processor implements one capability against one asset. Processors must be
// idempotent: reprocessing the same asset yields the same observable result.
type Processor interface {
	Kind() JobKind
	Process(ctx context.Context, asset *Asset, store BlobStore) (*Outcome, error)
}

// Outcome is the structured result of a successful processor run.
type Outcome struct {
	// Fields are merged into the asset's derived metadata.
	Fields map[string]interface{}

	// Artifacts maps derived variant names to storage keys written by the
	// processor. Keys must be deterministically derivable from the asset ID.
	Artifacts map[string]string
}
