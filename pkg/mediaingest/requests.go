package mediaingest

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// UploadRequest carries one inbound upload. OwnerID is opaque and
// pre-authenticated by the caller.
type UploadRequest struct {
	OwnerID    uuid.UUID
	Reader     io.Reader
	FileName   string
	MimeType   string
	DeviceID   string
	CapturedAt *time.Time
}

// UploadResult is the response to an upload. Duplicate detection is not an
// error: a duplicate upload succeeds with the pre-existing asset.
type UploadResult struct {
	Asset       *Asset `json:"asset"`
	IsDuplicate bool   `json:"is_duplicate"`
}

// DeleteRequest asks for a set of assets to be soft-deleted on behalf of
// one owner.
type DeleteRequest struct {
	OwnerID  uuid.UUID
	AssetIDs []uuid.UUID
}

// DeleteStatus is the per-asset outcome of a delete request.
type DeleteStatus string

// Delete status constants (typed).
const (
	DeleteStatusDeleted   DeleteStatus = "deleted"
	DeleteStatusNotFound  DeleteStatus = "not_found"
	DeleteStatusForbidden DeleteStatus = "forbidden"
)

// DeleteResult reports the outcome for one requested asset ID.
type DeleteResult struct {
	AssetID uuid.UUID    `json:"asset_id"`
	Status  DeleteStatus `json:"status"`
}
