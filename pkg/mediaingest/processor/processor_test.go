package processor_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/processor"
	memorystorage "github.com/tendant/media-ingest/pkg/mediaingest/storage/memory"
)

// pngBytes renders a w x h PNG for decoding tests.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func storedAsset(t *testing.T, store *memorystorage.Backend, mimeType string, data []byte) *mediaingest.Asset {
	t.Helper()
	now := time.Now().UTC()
	id := uuid.New()
	owner := uuid.New()
	asset := &mediaingest.Asset{
		ID:         id,
		OwnerID:    owner,
		Digest:     "sha256:test",
		FileName:   "source.png",
		MimeType:   mimeType,
		StorageKey: mediaingest.StorageKey(owner, id),
		Size:       int64(len(data)),
		Status:     mediaingest.AssetStatusStored,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Upload(context.Background(), asset.StorageKey, bytes.NewReader(data)))
	return asset
}

func TestThumbnailGeneratesVariants(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "image/png", pngBytes(t, 800, 600))

	proc := processor.NewThumbnail()
	outcome, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)

	require.Len(t, outcome.Artifacts, len(processor.DefaultVariants))
	assert.Equal(t, "png", outcome.Fields["thumbnail_source_format"])

	for _, variant := range processor.DefaultVariants {
		key, ok := outcome.Artifacts[variant.Name]
		require.True(t, ok)
		assert.Equal(t, mediaingest.ArtifactKey(asset.ID, variant.Name), key)

		rc, err := store.Download(context.Background(), key)
		require.NoError(t, err)
		cfg, format, err := image.DecodeConfig(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.LessOrEqual(t, cfg.Width, variant.MaxDim)
		assert.LessOrEqual(t, cfg.Height, variant.MaxDim)
	}
}

func TestThumbnailIdempotentKeys(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "image/png", pngBytes(t, 400, 400))

	proc := processor.NewThumbnail()
	first, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)
	second, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)

	// Rerun writes the same keys; no artifact accumulation.
	assert.Equal(t, first.Artifacts, second.Artifacts)
	assert.Equal(t, 1+len(processor.DefaultVariants), store.Len())
}

func TestThumbnailRejectsNonImage(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "text/plain", []byte("not an image"))

	proc := processor.NewThumbnail()
	_, err := proc.Process(context.Background(), asset, store)
	assert.Error(t, err)
}

func TestThumbnailCorruptImage(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "image/png", []byte("corrupt bytes"))

	proc := processor.NewThumbnail()
	_, err := proc.Process(context.Background(), asset, store)
	assert.Error(t, err)
}

func TestMetadataExtractsImageDimensions(t *testing.T) {
	store := memorystorage.New()
	data := pngBytes(t, 320, 240)
	asset := storedAsset(t, store, "image/png", data)

	proc := processor.NewMetadata()
	outcome, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), outcome.Fields["size_bytes"])
	assert.Equal(t, "image/png", outcome.Fields["detected_mime"])
	assert.Equal(t, 320, outcome.Fields["width"])
	assert.Equal(t, 240, outcome.Fields["height"])
	assert.Equal(t, "png", outcome.Fields["format"])
	assert.Empty(t, outcome.Artifacts)
}

func TestMetadataNonImage(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "text/plain", []byte("plain text payload"))

	proc := processor.NewMetadata()
	outcome, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)

	assert.Equal(t, int64(len("plain text payload")), outcome.Fields["size_bytes"])
	detected, _ := outcome.Fields["detected_mime"].(string)
	assert.True(t, strings.HasPrefix(detected, "text/plain"))
	assert.NotContains(t, outcome.Fields, "width")
}

func TestMetadataMissingBlob(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "image/png", pngBytes(t, 10, 10))
	require.NoError(t, store.Delete(context.Background(), asset.StorageKey))

	proc := processor.NewMetadata()
	_, err := proc.Process(context.Background(), asset, store)
	assert.Error(t, err)
}

func TestTaggerClassifiesByMimeAndExtension(t *testing.T) {
	store := memorystorage.New()
	ctx := context.Background()

	tests := []struct {
		name     string
		mimeType string
		fileName string
		want     []string
	}{
		{"jpeg photo", "image/jpeg", "IMG_0001.jpg", []string{"image", "photo"}},
		{"animated gif", "image/gif", "loop.gif", []string{"animation", "graphic", "image"}},
		{"video", "video/mp4", "clip.mp4", []string{"video"}},
		{"audio", "audio/mpeg", "song.mp3", []string{"audio"}},
		{"pdf", "application/pdf", "report.pdf", []string{"document"}},
		{"unknown", "application/octet-stream", "blob.bin", []string{"other"}},
	}

	proc := processor.NewTagger()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset := storedAsset(t, store, tt.mimeType, []byte("payload"))
			asset.FileName = tt.fileName

			outcome, err := proc.Process(ctx, asset, store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.Fields["tags"])
			assert.NotEmpty(t, outcome.Fields["tagger"])
		})
	}
}

func TestTaggerDeterministic(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "image/jpeg", []byte("payload"))

	proc := processor.NewTagger()
	first, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)
	second, err := proc.Process(context.Background(), asset, store)
	require.NoError(t, err)

	assert.Equal(t, first.Fields["tags"], second.Fields["tags"])
}

func TestTaggerMissingBlob(t *testing.T) {
	store := memorystorage.New()
	asset := storedAsset(t, store, "image/jpeg", []byte("payload"))
	require.NoError(t, store.Delete(context.Background(), asset.StorageKey))

	proc := processor.NewTagger()
	_, err := proc.Process(context.Background(), asset, store)
	assert.Error(t, err)
}
