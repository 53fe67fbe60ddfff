package mediaingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies a processing capability. The worker pool dispatches
// purely by kind; it is agnostic to what a processor does.
type JobKind string

// Job kind constants (typed).
const (
	KindThumbnail JobKind = "thumbnail"
	KindMetadata  JobKind = "metadata"
	KindMLTag     JobKind = "ml-tag"
)

// DefaultKinds are the capabilities scheduled for every newly ingested asset.
var DefaultKinds = []JobKind{KindThumbnail, KindMetadata, KindMLTag}

// JobKey derives the deterministic, idempotent key for one unit of work.
// Enqueue and dequeue paths share this single definition: resubmitting the
// same (asset, kind) pair can never create a second unit of work.
func JobKey(assetID uuid.UUID, kind JobKind) string {
	return fmt.Sprintf("%s:%s", assetID, kind)
}

// Job is one unit of deferred work against one asset.
type Job struct {
	Key        string    `json:"key"`
	Kind       JobKind   `json:"kind"`
	AssetID    uuid.UUID `json:"asset_id"`
	FileName   string    `json:"file_name,omitempty"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// LeaseToken is set by the queue on dequeue. Complete and Fail reject
	// a stale token so a late worker cannot clobber a newer attempt.
	LeaseToken string `json:"-"`
}

// NewJob builds a job for the given asset and kind.
func NewJob(assetID uuid.UUID, kind JobKind, fileName string) Job {
	return Job{
		Key:        JobKey(assetID, kind),
		Kind:       kind,
		AssetID:    assetID,
		FileName:   fileName,
		EnqueuedAt: time.Now().UTC(),
	}
}
