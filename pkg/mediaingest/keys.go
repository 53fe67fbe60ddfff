package mediaingest

import (
	"fmt"

	"github.com/google/uuid"
)

// StorageKey derives the permanent object key for an asset's original
// bytes. The key includes the asset ID so a losing participant in the
// insert-or-fetch race can delete its candidate object without touching the
// winner's.
func StorageKey(ownerID, assetID uuid.UUID) string {
	return fmt.Sprintf("assets/%s/%s", ownerID, assetID)
}

// ArtifactKey derives the object key for a derived artifact. Deterministic
// in (asset, variant): redelivered thumbnail jobs overwrite the same object
// instead of accumulating duplicates.
func ArtifactKey(assetID uuid.UUID, variant string) string {
	return fmt.Sprintf("derived/%s/%s", assetID, variant)
}
