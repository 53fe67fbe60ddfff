package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements mediaingest.Repository using PostgreSQL. The
// (owner, digest) uniqueness invariant is a partial unique index over
// non-deleted rows; per-capability processing state, derived metadata and
// artifacts are jsonb columns updated with jsonb_set / || so concurrent
// processors never overwrite each other's fields.
//
// Schema: see migrations/postgres/001_init.sql (media_asset table).
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const assetColumns = `
	id, owner_id, digest, file_name, mime_type, storage_key, size,
	device_id, captured_at, status, processing, metadata, artifacts,
	created_at, updated_at, deleted_at`

func scanAsset(row pgx.Row) (*mediaingest.Asset, error) {
	var asset mediaingest.Asset
	err := row.Scan(
		&asset.ID, &asset.OwnerID, &asset.Digest, &asset.FileName,
		&asset.MimeType, &asset.StorageKey, &asset.Size,
		&asset.DeviceID, &asset.CapturedAt, &asset.Status,
		&asset.Processing, &asset.Metadata, &asset.Artifacts,
		&asset.CreatedAt, &asset.UpdatedAt, &asset.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaingest.ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (r *Repository) CreateAsset(ctx context.Context, asset *mediaingest.Asset) error {
	query := `
		INSERT INTO media_asset (
			id, owner_id, digest, file_name, mime_type, storage_key, size,
			device_id, captured_at, status, processing, metadata, artifacts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		asset.ID, asset.OwnerID, asset.Digest, asset.FileName,
		asset.MimeType, asset.StorageKey, asset.Size,
		asset.DeviceID, asset.CapturedAt, asset.Status,
		asset.Processing, asset.Metadata, asset.Artifacts,
		asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// unique_violation on (owner_id, digest): the typed conflict the
			// dedup resolver resolves via fallback lookup.
			return mediaingest.ErrAssetExists
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediaingest.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_asset WHERE id = $1 AND deleted_at IS NULL`
	return scanAsset(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) GetAssetByOwnerDigest(ctx context.Context, ownerID uuid.UUID, digest string) (*mediaingest.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_asset
		WHERE owner_id = $1 AND digest = $2 AND deleted_at IS NULL`
	return scanAsset(r.db.QueryRow(ctx, query, ownerID, digest))
}

func (r *Repository) ListAssets(ctx context.Context, ownerID uuid.UUID) ([]*mediaingest.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_asset
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var result []*mediaingest.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, asset)
	}
	return result, rows.Err()
}

func (r *Repository) SoftDeleteAsset(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE media_asset
		SET status = $2, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, mediaingest.AssetStatusDeleted)
	if err != nil {
		return fmt.Errorf("failed to soft-delete asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaingest.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) SetProcessingState(ctx context.Context, id uuid.UUID, kind mediaingest.JobKind, state mediaingest.ProcessingState) error {
	// jsonb_set on one kind's entry: independent capabilities never touch
	// each other's state.
	query := `
		UPDATE media_asset
		SET processing = jsonb_set(coalesce(processing, '{}'::jsonb), ARRAY[$2::text], $3::jsonb),
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(kind), state)
	if err != nil {
		return fmt.Errorf("failed to set processing state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaingest.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) MergeAssetMetadata(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	query := `
		UPDATE media_asset
		SET metadata = coalesce(metadata, '{}'::jsonb) || $2::jsonb,
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, fields)
	if err != nil {
		return fmt.Errorf("failed to merge metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaingest.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) AddAssetArtifact(ctx context.Context, id uuid.UUID, variant, storageKey string) error {
	query := `
		UPDATE media_asset
		SET artifacts = jsonb_set(coalesce(artifacts, '{}'::jsonb), ARRAY[$2::text], to_jsonb($3::text)),
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, variant, storageKey)
	if err != nil {
		return fmt.Errorf("failed to add artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaingest.ErrAssetNotFound
	}
	return nil
}

func (r *Repository) ListPurgeable(ctx context.Context, olderThan time.Time, limit int) ([]*mediaingest.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_asset
		WHERE deleted_at IS NOT NULL AND deleted_at <= $1
		ORDER BY deleted_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purgeable assets: %w", err)
	}
	defer rows.Close()

	var result []*mediaingest.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, asset)
	}
	return result, rows.Err()
}

func (r *Repository) PurgeAsset(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM media_asset WHERE id = $1 AND deleted_at IS NOT NULL`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to purge asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mediaingest.ErrAssetNotFound
	}
	return nil
}
