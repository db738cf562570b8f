package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/infrastructure/contentstore"
)

// BlobRepository keeps the content store's reference counts in
// postgres so concurrent api/worker processes agree on blob
// lifetimes.
type BlobRepository struct {
	db *sql.DB
}

func NewBlobRepository(db *sql.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

func (r *BlobRepository) Get(ctx context.Context, hash string) (*contentstore.BlobMetadata, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT hash, size, media_type, key_version, refcount, released_at, created_at
FROM blobs
WHERE hash = $1
`, hash)

	var meta contentstore.BlobMetadata
	var released sql.NullTime
	err := row.Scan(&meta.Hash, &meta.Size, &meta.MediaType, &meta.KeyVersion, &meta.RefCount, &released, &meta.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get blob", fmt.Errorf("hash %s", hash))
		}
		return nil, fmt.Errorf("scan blob: %w", err)
	}
	if released.Valid {
		meta.ReleasedAt = &released.Time
	}
	return &meta, nil
}

// Insert is tolerant of a concurrent writer winning the race for the
// same hash: the conflict path degrades to a refcount bump, keeping
// Put idempotent across processes.
func (r *BlobRepository) Insert(ctx context.Context, meta contentstore.BlobMetadata) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO blobs (hash, size, media_type, key_version, refcount, released_at, created_at)
VALUES ($1,$2,$3,$4,$5,NULL,$6)
ON CONFLICT (hash) DO UPDATE SET refcount = blobs.refcount + 1, released_at = NULL
`, meta.Hash, meta.Size, meta.MediaType, meta.KeyVersion, meta.RefCount, meta.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert blob: %w", err)
	}
	return nil
}

func (r *BlobRepository) IncrementRef(ctx context.Context, hash string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE blobs SET refcount = refcount + 1, released_at = NULL WHERE hash = $1
`, hash)
	if err != nil {
		return fmt.Errorf("increment blob ref: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "increment blob ref", fmt.Errorf("hash %s", hash))
	}
	return nil
}

func (r *BlobRepository) DecrementRef(ctx context.Context, hash string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE blobs
SET refcount = GREATEST(refcount - 1, 0),
	released_at = CASE WHEN refcount - 1 <= 0 THEN $2 ELSE released_at END
WHERE hash = $1
RETURNING refcount
`, hash, time.Now().UTC())

	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrNotFound, "decrement blob ref", fmt.Errorf("hash %s", hash))
		}
		return 0, fmt.Errorf("decrement blob ref: %w", err)
	}
	return remaining, nil
}

func (r *BlobRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT hash FROM blobs WHERE refcount = 0 AND released_at IS NOT NULL AND released_at < $1
`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expired blobs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan expired blob: %w", err)
		}
		out = append(out, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired blobs: %w", err)
	}
	return out, nil
}

func (r *BlobRepository) Delete(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blobs WHERE hash = $1`, hash); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
