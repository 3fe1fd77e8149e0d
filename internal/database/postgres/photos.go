package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jasl/photo-index/internal/database"
)

// PhotoRepository provides PostgreSQL-backed photo storage.
type PhotoRepository struct {
	pool *Pool
}

// NewPhotoRepository creates a new PostgreSQL photo repository.
func NewPhotoRepository(pool *Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

const photoColumns = `
	id, file_path, filename, thumbnail_path, state,
	created_at, processed_at, file_size, width, height, error_message
`

func scanPhoto(row interface{ Scan(...any) error }) (*database.Photo, error) {
	var p database.Photo
	var processedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.FilePath,
		&p.Filename,
		&p.ThumbnailPath,
		&p.State,
		&p.CreatedAt,
		&processedAt,
		&p.FileSize,
		&p.Width,
		&p.Height,
		&p.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		p.ProcessedAt = &processedAt.Time
	}
	return &p, nil
}

// Create inserts a new photo in the pending state.
func (r *PhotoRepository) Create(ctx context.Context, filePath, filename string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO photos (file_path, filename, state)
		VALUES ($1, $2, $3)
		RETURNING id
	`, filePath, filename, database.StatePending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert photo: %w", err)
	}
	return id, nil
}

// GetByID returns the photo, or nil if not found.
func (r *PhotoRepository) GetByID(ctx context.Context, id int64) (*database.Photo, error) {
	p, err := scanPhoto(r.pool.QueryRow(ctx,
		"SELECT "+photoColumns+" FROM photos WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query photo: %w", err)
	}
	return p, nil
}

// GetByPath returns the photo with the given file path, or nil.
func (r *PhotoRepository) GetByPath(ctx context.Context, filePath string) (*database.Photo, error) {
	p, err := scanPhoto(r.pool.QueryRow(ctx,
		"SELECT "+photoColumns+" FROM photos WHERE file_path = $1", filePath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query photo by path: %w", err)
	}
	return p, nil
}

// ClaimNextPending atomically claims one pending photo. SKIP LOCKED keeps
// concurrent workers from racing on the same row.
func (r *PhotoRepository) ClaimNextPending(ctx context.Context) (*database.Photo, error) {
	p, err := scanPhoto(r.pool.QueryRow(ctx, `
		UPDATE photos
		SET state = $1
		WHERE id = (
			SELECT id FROM photos
			WHERE state = $2
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+photoColumns,
		database.StatePreprocessing, database.StatePending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNoPendingPhotos
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending photo: %w", err)
	}
	return p, nil
}

// AdvanceState moves the photo forward through the pipeline. A transition
// that would lower the state rank returns ErrStateRegression.
func (r *PhotoRepository) AdvanceState(ctx context.Context, id int64, state database.PhotoState) error {
	if !state.Valid() {
		return fmt.Errorf("unknown photo state %q", state)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("photo %d not found", id)
	}
	if state.Rank() < current.State.Rank() {
		return fmt.Errorf("%w: %s -> %s", database.ErrStateRegression, current.State, state)
	}

	if _, err := r.pool.Exec(ctx,
		"UPDATE photos SET state = $1 WHERE id = $2", state, id); err != nil {
		return fmt.Errorf("advance photo state: %w", err)
	}
	return nil
}

// Finish sets a terminal state, the processed timestamp, and the error
// message collected from failed steps.
func (r *PhotoRepository) Finish(ctx context.Context, id int64, state database.PhotoState, errorMessage string) error {
	if !state.Terminal() {
		return fmt.Errorf("state %q is not terminal", state)
	}

	if _, err := r.pool.Exec(ctx, `
		UPDATE photos
		SET state = $1, processed_at = NOW(), error_message = $2
		WHERE id = $3
	`, state, errorMessage, id); err != nil {
		return fmt.Errorf("finish photo: %w", err)
	}
	return nil
}

// SetPreprocessed records preprocessing output on the photo row.
func (r *PhotoRepository) SetPreprocessed(ctx context.Context, id int64, thumbnailPath string, width, height int, fileSize int64) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE photos
		SET thumbnail_path = $1, width = $2, height = $3, file_size = $4
		WHERE id = $5
	`, thumbnailPath, width, height, fileSize, id); err != nil {
		return fmt.Errorf("set preprocessed fields: %w", err)
	}
	return nil
}

// ResetForReprocessing is the one allowed backward transition: back to
// pending with a cleared error. Step rows are replaced on the next run.
func (r *PhotoRepository) ResetForReprocessing(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE photos
		SET state = $1, processed_at = NULL, error_message = ''
		WHERE id = $2
	`, database.StatePending, id); err != nil {
		return fmt.Errorf("reset photo for reprocessing: %w", err)
	}
	return nil
}

// StateCounts returns the number of photos per state.
func (r *PhotoRepository) StateCounts(ctx context.Context) (map[database.PhotoState]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT state, COUNT(*) FROM photos GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("query state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[database.PhotoState]int)
	for rows.Next() {
		var state database.PhotoState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state counts: %w", err)
	}
	return counts, nil
}

// ListRecent returns completed and partial photos ordered newest first,
// paginated for the gallery.
func (r *PhotoRepository) ListRecent(ctx context.Context, limit, offset int) ([]database.Photo, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+photoColumns+`
		FROM photos
		WHERE state IN ($1, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, database.StateCompleted, database.StatePartial, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query recent photos: %w", err)
	}
	defer rows.Close()

	var photos []database.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}

// GetByIDs returns the photos for the given ids, unordered.
func (r *PhotoRepository) GetByIDs(ctx context.Context, ids []int64) ([]database.Photo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		"SELECT "+photoColumns+" FROM photos WHERE id = ANY($1)", int64Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query photos by ids: %w", err)
	}
	defer rows.Close()

	var photos []database.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}

// Verify interface compliance
var _ database.PhotoRepository = (*PhotoRepository)(nil)
