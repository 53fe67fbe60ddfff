package mediaingest

import (
	"time"

	"github.com/google/uuid"
)

// AssetStatus is the domain type for asset lifecycle states.
type AssetStatus string

// Asset status constants (typed).
const (
	AssetStatusStored  AssetStatus = "stored"
	AssetStatusDeleted AssetStatus = "deleted"
)

// ProcessingStatus is the per-capability processing state of an asset.
type ProcessingStatus string

// Processing status constants (typed).
const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// Asset represents one durably ingested piece of content. The pair
// (OwnerID, Digest) is unique across non-deleted assets; StorageKey is set
// at creation and never reassigned.
type Asset struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Digest     string     `json:"digest"`
	FileName   string     `json:"file_name,omitempty"`
	MimeType   string     `json:"mime_type,omitempty"`
	StorageKey string     `json:"storage_key"`
	Size       int64      `json:"size"`
	DeviceID   string     `json:"device_id,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Status     AssetStatus `json:"status"`

	// Processing tracks per-capability state. Entries are updated
	// independently, last writer wins per kind.
	Processing map[JobKind]ProcessingState `json:"processing,omitempty"`

	// Metadata holds fields produced by processors (detected mime type,
	// dimensions, tags). Merged field by field, never overwritten whole.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Artifacts maps a derived variant (e.g. "thumbnail_256") to the
	// storage key of the derived file.
	Artifacts map[string]string `json:"artifacts,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ProcessingState is the recorded outcome of one capability for one asset.
type ProcessingState struct {
	Status    ProcessingStatus `json:"status"`
	Attempts  int              `json:"attempts,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Servable reports whether the asset can be listed and downloaded. A
// permanently failed processor does not make an asset unservable.
func (a *Asset) Servable() bool {
	return a.DeletedAt == nil && a.Status != AssetStatusDeleted
}
