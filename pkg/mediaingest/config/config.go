package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/processor"
	queuememory "github.com/tendant/media-ingest/pkg/mediaingest/queue/memory"
	queuepg "github.com/tendant/media-ingest/pkg/mediaingest/queue/postgres"
	repomemory "github.com/tendant/media-ingest/pkg/mediaingest/repo/memory"
	repopg "github.com/tendant/media-ingest/pkg/mediaingest/repo/postgres"
	fsstorage "github.com/tendant/media-ingest/pkg/mediaingest/storage/fs"
	memorystorage "github.com/tendant/media-ingest/pkg/mediaingest/storage/memory"
	s3storage "github.com/tendant/media-ingest/pkg/mediaingest/storage/s3"
)

// ServerConfig represents server configuration for the media-ingest service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	QueueType    string // "memory", "postgres" (defaults to DatabaseType)

	// Storage configuration
	StorageBackend string // "memory", "fs", "s3"
	FSBaseDir      string
	TempDir        string
	S3             S3Config

	// Worker configuration
	WorkerCount  int
	MaxAttempts  int
	LeaseTimeout time.Duration
	RetryBackoff time.Duration

	// Reaper configuration
	ReapInterval time.Duration
	TempTTL      time.Duration
	GracePeriod  time.Duration
}

// S3Config represents configuration for the S3 storage backend
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	CreateBucket    bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	if c.QueueType == "" {
		c.QueueType = c.DatabaseType
	}
	if c.QueueType != "memory" && c.QueueType != "postgres" {
		return errors.New("queue_type must be 'memory' or 'postgres'")
	}
	if c.QueueType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using a postgres queue")
	}
	switch c.StorageBackend {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required for the fs backend")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for the s3 backend")
		}
	default:
		return errors.New("storage_backend must be 'memory', 'fs' or 's3'")
	}
	if c.TempDir == "" {
		return errors.New("temp_dir is required")
	}
	return nil
}

// App bundles the constructed pipeline: the ingestion service, its worker
// pool and reaper, and the shared resources to close on shutdown.
type App struct {
	Service mediaingest.Service
	Workers *mediaingest.WorkerPool
	Reaper  *mediaingest.Reaper

	pool *pgxpool.Pool
}

// Close releases shared resources.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Build constructs the pipeline from the server configuration.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{}

	if c.DatabaseType == "postgres" || c.QueueType == "postgres" {
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		app.pool = pool
	}

	var repo mediaingest.Repository
	if c.DatabaseType == "postgres" {
		repo = repopg.NewWithPool(app.pool)
	} else {
		repo = repomemory.New()
	}

	var queue mediaingest.JobQueue
	if c.QueueType == "postgres" {
		queue = queuepg.NewWithPool(app.pool, queuepg.Config{
			MaxAttempts:  c.MaxAttempts,
			LeaseTimeout: c.LeaseTimeout,
			RetryBackoff: c.RetryBackoff,
		})
	} else {
		queue = queuememory.New(queuememory.Config{
			MaxAttempts:  c.MaxAttempts,
			LeaseTimeout: c.LeaseTimeout,
			RetryBackoff: c.RetryBackoff,
		})
	}

	store, err := c.buildStorageBackend()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}

	temp, err := mediaingest.NewTempStore(c.TempDir)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to build temp store: %w", err)
	}

	workers, err := mediaingest.NewWorkerPool(queue, repo, store,
		mediaingest.WithConcurrency(c.WorkerCount),
		mediaingest.WithProcessor(processor.NewThumbnail()),
		mediaingest.WithProcessor(processor.NewMetadata()),
		mediaingest.WithProcessor(processor.NewTagger()),
		mediaingest.WithWorkerLogger(logger),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to build worker pool: %w", err)
	}

	svc, err := mediaingest.New(
		mediaingest.WithRepository(repo),
		mediaingest.WithBlobStore(store),
		mediaingest.WithQueue(queue),
		mediaingest.WithTempStore(temp),
		mediaingest.WithJobKinds(workers.Kinds()...),
		mediaingest.WithLogger(logger),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to build service: %w", err)
	}

	app.Service = svc
	app.Workers = workers
	app.Reaper = mediaingest.NewReaper(repo, store, temp,
		mediaingest.WithInterval(c.ReapInterval),
		mediaingest.WithTempTTL(c.TempTTL),
		mediaingest.WithGracePeriod(c.GracePeriod),
		mediaingest.WithReaperLogger(logger),
	)
	return app, nil
}

func (c *ServerConfig) buildStorageBackend() (mediaingest.BlobStore, error) {
	switch c.StorageBackend {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}
