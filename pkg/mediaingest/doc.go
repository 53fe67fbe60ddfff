// Package mediaingest implements a deduplicating media ingestion pipeline:
// uploads are spooled to a temporary file, content-hashed, stored exactly
// once per (owner, digest) pair, and fanned out to an asynchronous worker
// pool for thumbnail generation, metadata extraction and tagging.
//
// The package is storage-agnostic: the asset registry (Repository), blob
// storage (BlobStore) and work queue (JobQueue) are interfaces with memory
// and postgres/S3 implementations in subpackages.
//
// Basic usage:
//
//	repo := memory.New()
//	store := memorystorage.New()
//	queue := memoryqueue.New(memoryqueue.Config{})
//	temp, _ := mediaingest.NewTempStore(os.TempDir())
//
//	svc, err := mediaingest.New(
//	    mediaingest.WithRepository(repo),
//	    mediaingest.WithBlobStore(store),
//	    mediaingest.WithQueue(queue),
//	    mediaingest.WithTempStore(temp),
//	)
package mediaingest
