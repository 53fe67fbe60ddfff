package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

type object struct {
	data      []byte
	updatedAt time.Time
}

// Backend is an in-memory implementation of the mediaingest.BlobStore
// interface, intended for tests and development.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &mediaingest.StorageError{Key: key, Op: "upload", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, updatedAt: time.Now().UTC()}
	return nil
}

func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, mediaingest.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return mediaingest.ErrBlobNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *Backend) GetMeta(ctx context.Context, key string) (*mediaingest.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, mediaingest.ErrBlobNotFound
	}

	contentType := "application/octet-stream"
	if len(obj.data) > 0 {
		sniff := obj.data
		if len(sniff) > 512 {
			sniff = sniff[:512]
		}
		contentType = http.DetectContentType(sniff)
	}

	return &mediaingest.BlobMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: contentType,
		UpdatedAt:   obj.updatedAt,
	}, nil
}

// Len returns the number of stored objects, for tests.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
