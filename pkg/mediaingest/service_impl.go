package mediaingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	store      BlobStore
	queue      JobQueue
	temp       *TempStore
	resolver   *Resolver
	kinds      []JobKind
	logger     *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the asset registry for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the permanent blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithQueue sets the work queue used to schedule processing jobs
func WithQueue(queue JobQueue) Option {
	return func(s *service) {
		s.queue = queue
	}
}

// WithTempStore sets the temporary file store for upload spooling
func WithTempStore(temp *TempStore) Option {
	return func(s *service) {
		s.temp = temp
	}
}

// WithJobKinds sets the processing capabilities scheduled for new assets.
// Defaults to DefaultKinds.
func WithJobKinds(kinds ...JobKind) Option {
	return func(s *service) {
		s.kinds = kinds
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		kinds:  DefaultKinds,
		logger: slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if s.temp == nil {
		return nil, fmt.Errorf("temp store is required")
	}

	s.resolver = NewResolver(s.repository)
	return s, nil
}

// Upload sequences the ingestion state machine: spool, hash, promote,
// create-or-find, enqueue. Cleanup compensation is decided here and nowhere
// else; individual components only report outcomes.
func (s *service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if req.Reader == nil {
		return nil, fmt.Errorf("%w: no payload", ErrValidation)
	}
	if req.FileName == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}

	tmp, err := s.temp.Spool(ctx, req.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadAborted, err)
	}
	// Discard is a no-op once the upload is promoted, so this covers every
	// pre-promote exit path including panics.
	defer tmp.Discard()

	if tmp.Size() == 0 {
		return nil, ErrEmptyUpload
	}

	digest, err := DigestFile(tmp.Path())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadAborted, err)
	}

	assetID := uuid.New()
	storageKey := StorageKey(req.OwnerID, assetID)

	if err := tmp.Promote(ctx, s.store, storageKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadAborted, err)
	}

	// From here the candidate object exists in permanent storage. It is
	// kept only when this request wins the insert; otherwise it is orphaned
	// and removed before returning.
	keep := false
	defer func() {
		if keep {
			return
		}
		cleanupCtx := context.WithoutCancel(ctx)
		if derr := s.store.Delete(cleanupCtx, storageKey); derr != nil {
			s.logger.Warn("failed to remove orphaned candidate object",
				"storage_key", storageKey, "error", derr)
		}
	}()

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	now := time.Now().UTC()
	candidate := &Asset{
		ID:         assetID,
		OwnerID:    req.OwnerID,
		Digest:     digest,
		FileName:   req.FileName,
		MimeType:   mimeType,
		StorageKey: storageKey,
		Size:       tmp.Size(),
		DeviceID:   req.DeviceID,
		CapturedAt: req.CapturedAt,
		Status:     AssetStatusStored,
		Processing: make(map[JobKind]ProcessingState, len(s.kinds)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, kind := range s.kinds {
		candidate.Processing[kind] = ProcessingState{Status: ProcessingPending, UpdatedAt: now}
	}

	asset, isNew, err := s.resolver.Resolve(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if !isNew {
		s.logger.Info("duplicate upload resolved to existing asset",
			"owner_id", req.OwnerID, "asset_id", asset.ID, "digest", digest)
		return &UploadResult{Asset: asset, IsDuplicate: true}, nil
	}

	keep = true
	s.enqueueJobs(ctx, asset)

	s.logger.Info("asset ingested",
		"owner_id", req.OwnerID, "asset_id", asset.ID, "digest", digest, "size", asset.Size)
	return &UploadResult{Asset: asset, IsDuplicate: false}, nil
}

// enqueueJobs submits one job per registered kind. A per-kind enqueue
// failure does not abort the asset: it already exists and is servable, and
// the missing job is recoverable through RequeuePending.
func (s *service) enqueueJobs(ctx context.Context, asset *Asset) {
	for _, kind := range s.kinds {
		job := NewJob(asset.ID, kind, asset.FileName)
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed to enqueue processing job",
				"asset_id", asset.ID, "kind", kind, "error", err)
		}
	}
}

func (s *service) Delete(ctx context.Context, req DeleteRequest) ([]DeleteResult, error) {
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	results := make([]DeleteResult, 0, len(req.AssetIDs))
	for _, id := range req.AssetIDs {
		results = append(results, DeleteResult{AssetID: id, Status: s.deleteOne(ctx, req.OwnerID, id)})
	}
	return results, nil
}

func (s *service) deleteOne(ctx context.Context, ownerID, id uuid.UUID) DeleteStatus {
	asset, err := s.repository.GetAsset(ctx, id)
	if err != nil {
		return DeleteStatusNotFound
	}
	if asset.OwnerID != ownerID {
		return DeleteStatusForbidden
	}
	if err := s.repository.SoftDeleteAsset(ctx, id); err != nil {
		s.logger.Error("failed to soft-delete asset", "asset_id", id, "error", err)
		return DeleteStatusNotFound
	}
	// Physical removal of the stored object and derived artifacts happens
	// in the reaper, off the request path.
	return DeleteStatusDeleted
}

func (s *service) GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error) {
	return s.repository.GetAsset(ctx, id)
}

func (s *service) ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*Asset, error) {
	return s.repository.ListAssets(ctx, ownerID)
}

func (s *service) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Asset, error) {
	asset, err := s.repository.GetAsset(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !asset.Servable() {
		return nil, nil, ErrAssetDeleted
	}

	rc, err := s.store.Download(ctx, asset.StorageKey)
	if err != nil {
		return nil, nil, &AssetError{AssetID: id, Op: "download", Err: err}
	}
	return rc, asset, nil
}

func (s *service) RequeuePending(ctx context.Context, assetID uuid.UUID) error {
	asset, err := s.repository.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}

	var firstErr error
	for kind, state := range asset.Processing {
		if state.Status != ProcessingPending {
			continue
		}
		job := NewJob(asset.ID, kind, asset.FileName)
		if err := s.queue.Enqueue(ctx, job); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return fmt.Errorf("requeue for asset %s: %w", assetID, firstErr)
	}
	return nil
}
