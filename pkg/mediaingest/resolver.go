package mediaingest

import (
	"context"
	"errors"
	"fmt"
)

// Resolver implements create-or-find semantics for assets keyed by
// (owner, digest).
type Resolver struct {
	repository Repository
}

// NewResolver creates a dedup resolver over the given repository.
func NewResolver(repository Repository) *Resolver {
	return &Resolver{repository: repository}
}

// Resolve attempts to insert the candidate asset. The insert always runs
// first; existence is never pre-checked, so two concurrent uploads of the
// same content are serialized by the store's uniqueness constraint instead
// of racing a check-then-act window.
//
// On success the candidate becomes the durable asset and its storage key is
// permanent: the caller must not delete the stored object. On a uniqueness
// conflict the existing asset is read back and returned with isNew=false;
// the caller must treat the candidate object as orphaned and hand it to
// cleanup. Any other storage error is fatal and propagates.
func (r *Resolver) Resolve(ctx context.Context, candidate *Asset) (*Asset, bool, error) {
	err := r.repository.CreateAsset(ctx, candidate)
	if err == nil {
		return candidate, true, nil
	}

	if !errors.Is(err, ErrAssetExists) {
		return nil, false, &AssetError{AssetID: candidate.ID, Op: "resolve", Err: err}
	}

	existing, err := r.repository.GetAssetByOwnerDigest(ctx, candidate.OwnerID, candidate.Digest)
	if err != nil {
		// The winning insert should be visible; if it is not, the store is
		// misbehaving and the upload must abort.
		return nil, false, fmt.Errorf("conflict lookup failed for digest %s: %w", candidate.Digest, err)
	}

	return existing, false, nil
}
