package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// Repository implements mediaingest.Repository using in-memory storage. The
// (owner, digest) uniqueness invariant is enforced under the repository
// lock, so concurrent create-or-find races are serialized the same way a
// database constraint would serialize them.
type Repository struct {
	mu            sync.RWMutex
	assets        map[uuid.UUID]*mediaingest.Asset
	byOwnerDigest map[string]uuid.UUID // "owner|digest" -> asset_id, non-deleted only
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		assets:        make(map[uuid.UUID]*mediaingest.Asset),
		byOwnerDigest: make(map[string]uuid.UUID),
	}
}

func dedupKey(ownerID uuid.UUID, digest string) string {
	return fmt.Sprintf("%s|%s", ownerID, digest)
}

// copyAsset deep-copies the mutable maps so callers cannot mutate stored
// state.
func copyAsset(a *mediaingest.Asset) *mediaingest.Asset {
	assetCopy := *a
	if a.Processing != nil {
		assetCopy.Processing = make(map[mediaingest.JobKind]mediaingest.ProcessingState, len(a.Processing))
		for k, v := range a.Processing {
			assetCopy.Processing[k] = v
		}
	}
	if a.Metadata != nil {
		assetCopy.Metadata = make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			assetCopy.Metadata[k] = v
		}
	}
	if a.Artifacts != nil {
		assetCopy.Artifacts = make(map[string]string, len(a.Artifacts))
		for k, v := range a.Artifacts {
			assetCopy.Artifacts[k] = v
		}
	}
	return &assetCopy
}

func (r *Repository) CreateAsset(ctx context.Context, asset *mediaingest.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey(asset.OwnerID, asset.Digest)
	if _, exists := r.byOwnerDigest[key]; exists {
		return mediaingest.ErrAssetExists
	}

	r.assets[asset.ID] = copyAsset(asset)
	r.byOwnerDigest[key] = asset.ID
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediaingest.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[id]
	if !exists || asset.DeletedAt != nil {
		return nil, mediaingest.ErrAssetNotFound
	}
	return copyAsset(asset), nil
}

func (r *Repository) GetAssetByOwnerDigest(ctx context.Context, ownerID uuid.UUID, digest string) (*mediaingest.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byOwnerDigest[dedupKey(ownerID, digest)]
	if !exists {
		return nil, mediaingest.ErrAssetNotFound
	}
	return copyAsset(r.assets[id]), nil
}

func (r *Repository) ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*mediaingest.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediaingest.Asset
	for _, asset := range r.assets {
		if asset.OwnerID == ownerID && asset.DeletedAt == nil {
			result = append(result, copyAsset(asset))
		}
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) SoftDeleteAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists || asset.DeletedAt != nil {
		return mediaingest.ErrAssetNotFound
	}

	now := time.Now().UTC()
	asset.Status = mediaingest.AssetStatusDeleted
	asset.DeletedAt = &now
	asset.UpdatedAt = now

	// Deleting frees the (owner, digest) pair for re-upload.
	delete(r.byOwnerDigest, dedupKey(asset.OwnerID, asset.Digest))
	return nil
}

func (r *Repository) SetProcessingState(ctx context.Context, id uuid.UUID, kind mediaingest.JobKind, state mediaingest.ProcessingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists {
		return mediaingest.ErrAssetNotFound
	}

	if asset.Processing == nil {
		asset.Processing = make(map[mediaingest.JobKind]mediaingest.ProcessingState)
	}
	asset.Processing[kind] = state
	asset.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) MergeAssetMetadata(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists {
		return mediaingest.ErrAssetNotFound
	}

	if asset.Metadata == nil {
		asset.Metadata = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		asset.Metadata[k] = v
	}
	asset.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) AddAssetArtifact(ctx context.Context, id uuid.UUID, variant, storageKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists {
		return mediaingest.ErrAssetNotFound
	}

	if asset.Artifacts == nil {
		asset.Artifacts = make(map[string]string)
	}
	asset.Artifacts[variant] = storageKey
	asset.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) ListPurgeable(ctx context.Context, olderThan time.Time, limit int) ([]*mediaingest.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediaingest.Asset
	for _, asset := range r.assets {
		if asset.DeletedAt == nil || asset.DeletedAt.After(olderThan) {
			continue
		}
		result = append(result, copyAsset(asset))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *Repository) PurgeAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists {
		return mediaingest.ErrAssetNotFound
	}
	if asset.DeletedAt == nil {
		return fmt.Errorf("asset %s is not soft-deleted", id)
	}

	delete(r.assets, id)
	return nil
}
