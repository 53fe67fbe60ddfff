package mediaingest

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the ingestion pipeline's top-level interface. Upload runs the
// orchestrator synchronously through enqueue and returns without waiting on
// processing; the worker pool consumes independently.
type Service interface {
	// Upload ingests one file: spool, hash, create-or-find the asset, and
	// schedule processing jobs for a newly created asset. On every failure
	// path the temporary file is discarded and no partial asset remains.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// Delete soft-deletes the caller's assets and schedules their files and
	// derived artifacts for removal off the request path.
	Delete(ctx context.Context, req DeleteRequest) ([]DeleteResult, error)

	GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error)
	ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*Asset, error)

	// Download opens the stored bytes of a servable asset.
	Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Asset, error)

	// RequeuePending re-submits jobs for capabilities still marked pending.
	// Safe to call repeatedly: enqueue is idempotent by job key. Used by the
	// reconciliation sweep that repairs the crash window between asset
	// creation and enqueue confirmation.
	RequeuePending(ctx context.Context, assetID uuid.UUID) error
}
