package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/storage/memory"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "key", strings.NewReader("in-memory bytes")))
	assert.Equal(t, 1, backend.Len())

	rc, err := backend.Download(ctx, "key")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "in-memory bytes", string(data))
}

func TestMissingKey(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	_, err := backend.Download(ctx, "none")
	assert.ErrorIs(t, err, mediaingest.ErrBlobNotFound)

	_, err = backend.GetMeta(ctx, "none")
	assert.ErrorIs(t, err, mediaingest.ErrBlobNotFound)

	assert.ErrorIs(t, backend.Delete(ctx, "none"), mediaingest.ErrBlobNotFound)
}

func TestDelete(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "key", strings.NewReader("bytes")))
	require.NoError(t, backend.Delete(ctx, "key"))
	assert.Zero(t, backend.Len())

	_, err := backend.Download(ctx, "key")
	assert.ErrorIs(t, err, mediaingest.ErrBlobNotFound)
}

func TestGetMetaSniffsContentType(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "doc", strings.NewReader("plain text here")))

	meta, err := backend.GetMeta(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, int64(len("plain text here")), meta.Size)
	assert.True(t, strings.HasPrefix(meta.ContentType, "text/plain"))
}
