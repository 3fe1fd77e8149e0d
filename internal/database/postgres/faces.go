package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jasl/photo-index/internal/database"
	"github.com/pgvector/pgvector-go"
)

// FaceRepository provides PostgreSQL-backed face storage.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// ReplaceFaces swaps the photo's face rows in one transaction.
func (r *FaceRepository) ReplaceFaces(ctx context.Context, photoID int64, faces []database.StoredFace) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM face_records WHERE photo_id = $1", photoID); err != nil {
		return fmt.Errorf("delete faces: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_records (photo_id, bbox, embedding, det_score, cluster_id)
		VALUES ($1, $2, $3::vector, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare face insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range faces {
		bbox, err := json.Marshal(f.BBox)
		if err != nil {
			return fmt.Errorf("marshal face bbox: %w", err)
		}
		vec := pgvector.NewVector(f.Embedding)
		if _, err := stmt.ExecContext(ctx, photoID, bbox, vec, f.DetScore, f.ClusterID); err != nil {
			return fmt.Errorf("insert face: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CountForPhoto returns the number of faces on a photo.
func (r *FaceRepository) CountForPhoto(ctx context.Context, photoID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM face_records WHERE photo_id = $1", photoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// ListForPhoto returns the photo's faces ordered by detection score.
func (r *FaceRepository) ListForPhoto(ctx context.Context, photoID int64) ([]database.StoredFace, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, photo_id, bbox, embedding, det_score, cluster_id
		FROM face_records
		WHERE photo_id = $1
		ORDER BY det_score DESC, id
	`, photoID)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var faces []database.StoredFace
	for rows.Next() {
		var f database.StoredFace
		var bbox []byte
		var vec pgvector.Vector
		if err := rows.Scan(&f.ID, &f.PhotoID, &bbox, &vec, &f.DetScore, &f.ClusterID); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		if err := json.Unmarshal(bbox, &f.BBox); err != nil {
			return nil, fmt.Errorf("unmarshal face bbox: %w", err)
		}
		f.Embedding = vec.Slice()
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// Verify interface compliance
var _ database.FaceRepository = (*FaceRepository)(nil)
