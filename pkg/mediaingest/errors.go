package mediaingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrAssetExists indicates an asset with the same (owner, digest) pair
	// already exists. The dedup resolver treats this as control flow; every
	// other caller treats it as a failure.
	ErrAssetExists = errors.New("asset already exists")

	// ErrAssetNotFound indicates an asset was not found
	ErrAssetNotFound = errors.New("asset not found")

	// ErrValidation indicates bad input that must not be retried
	ErrValidation = errors.New("validation failed")

	// ErrEmptyUpload indicates an upload with no readable payload
	ErrEmptyUpload = fmt.Errorf("%w: empty payload", ErrValidation)

	// ErrAssetDeleted indicates an operation against a soft-deleted asset
	ErrAssetDeleted = errors.New("asset is deleted")

	// ErrJobNotFound indicates a queue operation referenced an unknown job key
	ErrJobNotFound = errors.New("job not found")

	// ErrLeaseExpired indicates a worker's lease on a job is no longer valid;
	// the holder must stop mutating the asset.
	ErrLeaseExpired = errors.New("job lease expired")

	// ErrBlobNotFound indicates a storage backend has no object for a key
	ErrBlobNotFound = errors.New("blob not found")

	// ErrUploadAborted indicates the upload was rejected and its temporary
	// file discarded
	ErrUploadAborted = errors.New("upload aborted")
)

// AssetError represents an error related to asset operations
type AssetError struct {
	AssetID uuid.UUID
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for asset %s: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
