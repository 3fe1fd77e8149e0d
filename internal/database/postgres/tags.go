package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jasl/photo-index/internal/database"
)

// TagRepository provides PostgreSQL-backed object detection storage.
type TagRepository struct {
	pool *Pool
}

// NewTagRepository creates a new PostgreSQL tag repository.
func NewTagRepository(pool *Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

// ReplaceDetections swaps the photo's detection and tag rows in one
// transaction, keeping re-runs idempotent.
func (r *TagRepository) ReplaceDetections(ctx context.Context, photoID int64, detections []database.DetectedTag, uniqueTags []database.PhotoTag) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM detected_objects WHERE photo_id = $1", photoID); err != nil {
		return fmt.Errorf("delete detections: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM photo_tags WHERE photo_id = $1", photoID); err != nil {
		return fmt.Errorf("delete photo tags: %w", err)
	}

	detStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detected_objects (photo_id, tag, confidence, category_id, bbox)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare detection insert: %w", err)
	}
	defer detStmt.Close()

	for _, d := range detections {
		var bbox []byte
		if d.BBox != nil {
			bbox, err = json.Marshal(d.BBox)
			if err != nil {
				return fmt.Errorf("marshal bbox: %w", err)
			}
		}
		if _, err := detStmt.ExecContext(ctx, photoID, d.Tag, d.Confidence, d.CategoryID, bbox); err != nil {
			return fmt.Errorf("insert detection %q: %w", d.Tag, err)
		}
	}

	tagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO photo_tags (photo_id, tag, confidence, category_id)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare tag insert: %w", err)
	}
	defer tagStmt.Close()

	for _, t := range uniqueTags {
		if _, err := tagStmt.ExecContext(ctx, photoID, t.Tag, t.Confidence, t.CategoryID); err != nil {
			return fmt.Errorf("insert tag %q: %w", t.Tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListPhotoTags returns the deduplicated tags for a photo, highest
// confidence first.
func (r *TagRepository) ListPhotoTags(ctx context.Context, photoID int64) ([]database.PhotoTag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, photo_id, tag, confidence, category_id
		FROM photo_tags
		WHERE photo_id = $1
		ORDER BY confidence DESC, tag
	`, photoID)
	if err != nil {
		return nil, fmt.Errorf("query photo tags: %w", err)
	}
	defer rows.Close()

	var tags []database.PhotoTag
	for rows.Next() {
		var t database.PhotoTag
		if err := rows.Scan(&t.ID, &t.PhotoID, &t.Tag, &t.Confidence, &t.CategoryID); err != nil {
			return nil, fmt.Errorf("scan photo tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo tags: %w", err)
	}
	return tags, nil
}

// ListDetections returns every detection instance for a photo.
func (r *TagRepository) ListDetections(ctx context.Context, photoID int64) ([]database.DetectedTag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, photo_id, tag, confidence, category_id, bbox
		FROM detected_objects
		WHERE photo_id = $1
		ORDER BY confidence DESC, id
	`, photoID)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var detections []database.DetectedTag
	for rows.Next() {
		var d database.DetectedTag
		var bbox []byte
		if err := rows.Scan(&d.ID, &d.PhotoID, &d.Tag, &d.Confidence, &d.CategoryID, &bbox); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		if len(bbox) > 0 {
			var b database.BBox
			if err := json.Unmarshal(bbox, &b); err != nil {
				return nil, fmt.Errorf("unmarshal bbox: %w", err)
			}
			d.BBox = &b
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return detections, nil
}

// Verify interface compliance
var _ database.TagRepository = (*TagRepository)(nil)
