package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGBlobStore stores verification documents in Postgres. Content lives in a
// bytea column alongside the metadata; at the 10 MB cap this stays well within
// comfortable row sizes and keeps backups and deletes transactional.
type PGBlobStore struct {
	pool *pgxpool.Pool
}

// NewPGBlobStore creates a Postgres-backed BlobStore.
func NewPGBlobStore(pool *pgxpool.Pool) *PGBlobStore {
	return &PGBlobStore{pool: pool}
}

func (s *PGBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := validateAndHash(meta, content)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO verification_blob (id, file_name, content_type, size, owner_id, category, hash, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		meta.ID, meta.FileName, meta.ContentType, meta.Size, meta.OwnerID, meta.Category, meta.Hash, data, meta.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	out := meta
	return &out, nil
}

func (s *PGBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	var meta BlobMetadata
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, file_name, content_type, size, owner_id, category, hash, content, created_at
		FROM verification_blob WHERE id = $1`, id,
	).Scan(&meta.ID, &meta.FileName, &meta.ContentType, &meta.Size, &meta.OwnerID, &meta.Category, &meta.Hash, &data, &meta.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("loading document: %w", err)
	}

	return io.NopCloser(bytes.NewReader(data)), &meta, nil
}

func (s *PGBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	var meta BlobMetadata
	err := s.pool.QueryRow(ctx, `
		SELECT id, file_name, content_type, size, owner_id, category, hash, created_at
		FROM verification_blob WHERE id = $1`, id,
	).Scan(&meta.ID, &meta.FileName, &meta.ContentType, &meta.Size, &meta.OwnerID, &meta.Category, &meta.Hash, &meta.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("loading document metadata: %w", err)
	}
	return &meta, nil
}

func (s *PGBlobStore) ListByOwner(ctx context.Context, ownerID, category string, limit, offset int) ([]*BlobMetadata, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where := "WHERE owner_id = $1"
	args := []any{ownerID}
	if category != "" {
		where += " AND category = $2"
		args = append(args, category)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM verification_blob "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, file_name, content_type, size, owner_id, category, hash, created_at
		FROM verification_blob %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []*BlobMetadata
	for rows.Next() {
		var meta BlobMetadata
		if err := rows.Scan(&meta.ID, &meta.FileName, &meta.ContentType, &meta.Size, &meta.OwnerID, &meta.Category, &meta.Hash, &meta.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning document row: %w", err)
		}
		out = append(out, &meta)
	}
	return out, total, rows.Err()
}

func (s *PGBlobStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM verification_blob WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}
