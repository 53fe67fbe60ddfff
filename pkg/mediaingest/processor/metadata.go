package processor

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// Metadata extracts intrinsic file metadata: verified size, sniffed content
// type, and pixel dimensions for images. It writes only its own derived
// fields, never the whole record.
type Metadata struct{}

// NewMetadata creates a metadata extraction processor.
func NewMetadata() *Metadata { return &Metadata{} }

func (p *Metadata) Kind() mediaingest.JobKind { return mediaingest.KindMetadata }

func (p *Metadata) Process(ctx context.Context, asset *mediaingest.Asset, store mediaingest.BlobStore) (*mediaingest.Outcome, error) {
	meta, err := store.GetMeta(ctx, asset.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	rc, err := store.Download(ctx, asset.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	defer rc.Close()

	sniff := make([]byte, 512)
	n, err := io.ReadFull(rc, sniff)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read source: %w", err)
	}

	detected := http.DetectContentType(sniff[:n])
	fields := map[string]interface{}{
		"size_bytes":    meta.Size,
		"detected_mime": detected,
	}

	if strings.HasPrefix(detected, "image/") {
		// Re-open: DecodeConfig needs the header we already consumed.
		img, err := store.Download(ctx, asset.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("download source: %w", err)
		}
		defer img.Close()

		if cfg, format, err := image.DecodeConfig(img); err == nil {
			fields["width"] = cfg.Width
			fields["height"] = cfg.Height
			fields["format"] = format
		}
	}

	return &mediaingest.Outcome{Fields: fields}, nil
}
