package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// Register decoders for the formats the thumbnailer accepts.
	_ "image/gif"
	_ "image/png"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// Variant is one thumbnail output size.
type Variant struct {
	Name   string // e.g. "thumbnail_256"
	MaxDim int    // bounding box edge in pixels
}

// DefaultVariants are generated when none are configured.
var DefaultVariants = []Variant{
	{Name: "thumbnail_256", MaxDim: 256},
	{Name: "thumbnail_128", MaxDim: 128},
}

// Thumbnail produces downscaled JPEG artifacts for image assets. Artifact
// keys are derived from the asset ID, so a redelivered job overwrites the
// same objects instead of duplicating them.
type Thumbnail struct {
	variants []Variant
}

// NewThumbnail creates a thumbnail processor for the given variants
// (DefaultVariants when empty).
func NewThumbnail(variants ...Variant) *Thumbnail {
	if len(variants) == 0 {
		variants = DefaultVariants
	}
	return &Thumbnail{variants: variants}
}

func (p *Thumbnail) Kind() mediaingest.JobKind { return mediaingest.KindThumbnail }

func (p *Thumbnail) Process(ctx context.Context, asset *mediaingest.Asset, store mediaingest.BlobStore) (*mediaingest.Outcome, error) {
	if !strings.HasPrefix(asset.MimeType, "image/") {
		return nil, fmt.Errorf("unsupported content type %q for thumbnailing", asset.MimeType)
	}

	rc, err := store.Download(ctx, asset.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	defer rc.Close()

	src, format, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", asset.MimeType, err)
	}

	outcome := &mediaingest.Outcome{
		Fields:    map[string]interface{}{"thumbnail_source_format": format},
		Artifacts: make(map[string]string, len(p.variants)),
	}

	for _, variant := range p.variants {
		thumb := scaleToFit(src, variant.MaxDim)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("encode %s: %w", variant.Name, err)
		}

		key := mediaingest.ArtifactKey(asset.ID, variant.Name)
		if err := store.Upload(ctx, key, &buf); err != nil {
			return nil, fmt.Errorf("store %s: %w", variant.Name, err)
		}
		outcome.Artifacts[variant.Name] = key
	}

	return outcome, nil
}

// scaleToFit downscales src so its longer edge is at most maxDim, using
// nearest-neighbor sampling. Images already within bounds are re-encoded
// unscaled.
func scaleToFit(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	var dw, dh int
	if w >= h {
		dw = maxDim
		dh = h * maxDim / w
	} else {
		dh = maxDim
		dw = w * maxDim / h
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		sy := bounds.Min.Y + y*h/dh
		for x := 0; x < dw; x++ {
			sx := bounds.Min.X + x*w/dw
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
