package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jasl/photo-index/internal/database"
)

// HashRepository provides PostgreSQL-backed perceptual hash and duplicate
// pair storage.
type HashRepository struct {
	pool *Pool
}

// NewHashRepository creates a new PostgreSQL hash repository.
func NewHashRepository(pool *Pool) *HashRepository {
	return &HashRepository{pool: pool}
}

// Replace upserts the photo's hash row.
func (r *HashRepository) Replace(ctx context.Context, photoID int64, hash string, quality float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO photo_hashes (photo_id, hash, quality)
		VALUES ($1, $2, $3)
		ON CONFLICT (photo_id) DO UPDATE SET
			hash = EXCLUDED.hash,
			quality = EXCLUDED.quality
	`, photoID, hash, quality)
	if err != nil {
		return fmt.Errorf("save photo hash: %w", err)
	}
	return nil
}

// Get returns the photo's hash, or nil.
func (r *HashRepository) Get(ctx context.Context, photoID int64) (*database.PhotoHash, error) {
	var h database.PhotoHash
	err := r.pool.QueryRow(ctx, `
		SELECT photo_id, hash, quality
		FROM photo_hashes
		WHERE photo_id = $1
	`, photoID).Scan(&h.PhotoID, &h.Hash, &h.Quality)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query photo hash: %w", err)
	}
	return &h, nil
}

func (r *HashRepository) list(ctx context.Context, query string, args ...any) ([]database.PhotoHash, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query photo hashes: %w", err)
	}
	defer rows.Close()

	var hashes []database.PhotoHash
	for rows.Next() {
		var h database.PhotoHash
		if err := rows.Scan(&h.PhotoID, &h.Hash, &h.Quality); err != nil {
			return nil, fmt.Errorf("scan photo hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo hashes: %w", err)
	}
	return hashes, nil
}

// ListOthers returns every hash row except the given photo's. The duplicate
// check walks this list linearly.
func (r *HashRepository) ListOthers(ctx context.Context, photoID int64) ([]database.PhotoHash, error) {
	return r.list(ctx, `
		SELECT photo_id, hash, quality
		FROM photo_hashes
		WHERE photo_id <> $1
		ORDER BY photo_id
	`, photoID)
}

// ListAll returns every hash row, used by maintenance commands.
func (r *HashRepository) ListAll(ctx context.Context) ([]database.PhotoHash, error) {
	return r.list(ctx, `
		SELECT photo_id, hash, quality
		FROM photo_hashes
		ORDER BY photo_id
	`)
}

// Update rewrites a stored hash value in place.
func (r *HashRepository) Update(ctx context.Context, photoID int64, hash string) error {
	if _, err := r.pool.Exec(ctx,
		"UPDATE photo_hashes SET hash = $1 WHERE photo_id = $2", hash, photoID); err != nil {
		return fmt.Errorf("update photo hash: %w", err)
	}
	return nil
}

// Delete removes a photo's hash row.
func (r *HashRepository) Delete(ctx context.Context, photoID int64) error {
	if _, err := r.pool.Exec(ctx,
		"DELETE FROM photo_hashes WHERE photo_id = $1", photoID); err != nil {
		return fmt.Errorf("delete photo hash: %w", err)
	}
	return nil
}

// UpsertDuplicate records a duplicate pair with normalized ordering. An
// existing pair keeps its original distance.
func (r *HashRepository) UpsertDuplicate(ctx context.Context, photoID1, photoID2 int64, distance int) error {
	if photoID1 == photoID2 {
		return fmt.Errorf("duplicate pair requires two distinct photos, got %d", photoID1)
	}
	if photoID1 > photoID2 {
		photoID1, photoID2 = photoID2, photoID1
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO duplicate_pairs (photo_id_1, photo_id_2, hamming_distance)
		VALUES ($1, $2, $3)
		ON CONFLICT (photo_id_1, photo_id_2) DO NOTHING
	`, photoID1, photoID2, distance)
	if err != nil {
		return fmt.Errorf("save duplicate pair: %w", err)
	}
	return nil
}

// ListDuplicates returns duplicate pairs involving a photo.
func (r *HashRepository) ListDuplicates(ctx context.Context, photoID int64) ([]database.DuplicatePair, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT photo_id_1, photo_id_2, hamming_distance
		FROM duplicate_pairs
		WHERE photo_id_1 = $1 OR photo_id_2 = $1
		ORDER BY hamming_distance, photo_id_1, photo_id_2
	`, photoID)
	if err != nil {
		return nil, fmt.Errorf("query duplicate pairs: %w", err)
	}
	defer rows.Close()

	var pairs []database.DuplicatePair
	for rows.Next() {
		var p database.DuplicatePair
		if err := rows.Scan(&p.PhotoID1, &p.PhotoID2, &p.HammingDistance); err != nil {
			return nil, fmt.Errorf("scan duplicate pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate pairs: %w", err)
	}
	return pairs, nil
}

// DuplicatePhotoIDs returns every photo id that appears in a duplicate pair.
func (r *HashRepository) DuplicatePhotoIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT photo_id_1, photo_id_2 FROM duplicate_pairs")
	if err != nil {
		return nil, fmt.Errorf("query duplicate photo ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan duplicate photo ids: %w", err)
		}
		ids[a] = true
		ids[b] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate photo ids: %w", err)
	}
	return ids, nil
}

// CountDuplicatePairs returns the number of recorded duplicate pairs.
func (r *HashRepository) CountDuplicatePairs(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM duplicate_pairs").Scan(&count); err != nil {
		return 0, fmt.Errorf("count duplicate pairs: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ database.HashRepository = (*HashRepository)(nil)
