package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jasl/photo-index/internal/database"
)

// OCRRepository provides PostgreSQL-backed OCR text storage.
type OCRRepository struct {
	pool *Pool
}

// NewOCRRepository creates a new PostgreSQL OCR repository.
func NewOCRRepository(pool *Pool) *OCRRepository {
	return &OCRRepository{pool: pool}
}

// Replace swaps the photo's OCR row. An empty text deletes any prior row
// and writes nothing; a photo with no readable text has no OCR record.
func (r *OCRRepository) Replace(ctx context.Context, photoID int64, text, language string) error {
	text = strings.TrimSpace(text)

	if text == "" {
		if _, err := r.pool.Exec(ctx,
			"DELETE FROM ocr_records WHERE photo_id = $1", photoID); err != nil {
			return fmt.Errorf("delete ocr record: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO ocr_records (photo_id, text, language)
		VALUES ($1, $2, $3)
		ON CONFLICT (photo_id) DO UPDATE SET
			text = EXCLUDED.text,
			language = EXCLUDED.language
	`, photoID, text, language)
	if err != nil {
		return fmt.Errorf("save ocr record: %w", err)
	}
	return nil
}

// Get returns the photo's OCR record, or nil.
func (r *OCRRepository) Get(ctx context.Context, photoID int64) (*database.OCRRecord, error) {
	var rec database.OCRRecord
	err := r.pool.QueryRow(ctx, `
		SELECT photo_id, text, language
		FROM ocr_records
		WHERE photo_id = $1
	`, photoID).Scan(&rec.PhotoID, &rec.Text, &rec.Language)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ocr record: %w", err)
	}
	return &rec, nil
}

// Verify interface compliance
var _ database.OCRRepository = (*OCRRepository)(nil)
