package mediaingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TempStore spools uploaded bytes to disk until the asset record is durably
// created or the upload is rejected. Every spooled file terminates as
// exactly one of promoted or discarded.
type TempStore struct {
	dir string
}

// NewTempStore creates a temp store rooted at dir.
func NewTempStore(dir string) (*TempStore, error) {
	if dir == "" {
		return nil, errors.New("temp directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TempStore{dir: dir}, nil
}

// Spool copies the reader into a transient file. The caller owns the
// returned upload and must end it with Promote or Discard on every exit
// path.
func (t *TempStore) Spool(ctx context.Context, reader io.Reader) (*TemporaryUpload, error) {
	f, err := os.CreateTemp(t.dir, "upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(f, reader)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}

	return &TemporaryUpload{path: f.Name(), size: size}, nil
}

// SweepStale removes spooled files older than maxAge. Files that old belong
// to requests that never reached promote or discard (e.g. a crash mid
// upload). Returns the number of files removed.
func (t *TempStore) SweepStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(t.dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// TemporaryUpload is a transient, unowned file on disk.
type TemporaryUpload struct {
	mu       sync.Mutex
	path     string
	size     int64
	finished bool
}

// Path returns the transient path of the spooled file.
func (u *TemporaryUpload) Path() string { return u.path }

// Size returns the spooled byte count.
func (u *TemporaryUpload) Size() int64 { return u.size }

// Promote streams the spooled bytes into the blob store under the given key
// and removes the transient file. After Promote the permanent object is the
// sole copy.
func (u *TemporaryUpload) Promote(ctx context.Context, store BlobStore, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.finished {
		return errors.New("temporary upload already finished")
	}

	f, err := os.Open(u.path)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	err = store.Upload(ctx, key, f)
	f.Close()
	if err != nil {
		return &StorageError{Key: key, Op: "promote", Err: err}
	}

	u.finished = true
	if err := os.Remove(u.path); err != nil {
		return fmt.Errorf("failed to remove temp file after promote: %w", err)
	}
	return nil
}

// Discard removes the transient file. Calling Discard after Promote or a
// previous Discard is a no-op, so it is safe to defer unconditionally.
func (u *TemporaryUpload) Discard() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.finished {
		return nil
	}
	u.finished = true
	if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard temp file: %w", err)
	}
	return nil
}
