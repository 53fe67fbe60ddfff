package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/storage/fs"
)

func newBackend(t *testing.T) (*fs.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)
	return backend, dir
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	backend, _ := newBackend(t)
	ctx := context.Background()

	key := "assets/owner/asset"
	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("file contents")))

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "file contents", string(data))
}

func TestUploadLeavesNoPartialFiles(t *testing.T) {
	backend, dir := newBackend(t)
	ctx := context.Background()

	key := "assets/owner/asset"
	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("contents")))

	entries, err := os.ReadDir(filepath.Join(dir, "assets", "owner"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "asset", entries[0].Name())
}

func TestDownloadMissingKey(t *testing.T) {
	backend, _ := newBackend(t)

	_, err := backend.Download(context.Background(), "assets/none")
	assert.ErrorIs(t, err, mediaingest.ErrBlobNotFound)
}

func TestDeleteRemovesFileAndEmptyDirs(t *testing.T) {
	backend, dir := newBackend(t)
	ctx := context.Background()

	key := "assets/owner/asset"
	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("contents")))
	require.NoError(t, backend.Delete(ctx, key))

	_, err := backend.Download(ctx, key)
	assert.ErrorIs(t, err, mediaingest.ErrBlobNotFound)

	// Emptied intermediate directories are cleaned up; the base survives.
	assert.NoDirExists(t, filepath.Join(dir, "assets"))
	assert.DirExists(t, dir)

	assert.ErrorIs(t, backend.Delete(ctx, key), mediaingest.ErrBlobNotFound)
}

func TestGetMeta(t *testing.T) {
	backend, _ := newBackend(t)
	ctx := context.Background()

	key := "assets/owner/asset.txt"
	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("some text contents")))

	meta, err := backend.GetMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, meta.Key)
	assert.Equal(t, int64(len("some text contents")), meta.Size)
	assert.True(t, strings.HasPrefix(meta.ContentType, "text/plain"))
	assert.False(t, meta.UpdatedAt.IsZero())

	_, err = backend.GetMeta(ctx, "assets/none")
	assert.ErrorIs(t, err, mediaingest.ErrBlobNotFound)
}

func TestUploadOverwrite(t *testing.T) {
	backend, _ := newBackend(t)
	ctx := context.Background()

	key := "assets/owner/asset"
	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("first")))
	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("second")))

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
