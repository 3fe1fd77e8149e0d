package database

import (
	"context"
	"errors"
	"time"
)

// ErrStateRegression is returned when a state update would move a photo
// backward through the pipeline ordering.
var ErrStateRegression = errors.New("photo state may not move backward")

// ErrNoPendingPhotos is returned by ClaimNextPending when the queue is empty.
var ErrNoPendingPhotos = errors.New("no pending photos")

// PhotoRepository manages photo rows and their processing state.
type PhotoRepository interface {
	// Create inserts a new photo in the pending state.
	Create(ctx context.Context, filePath, filename string) (int64, error)
	// GetByID returns the photo, or nil if not found.
	GetByID(ctx context.Context, id int64) (*Photo, error)
	// GetByPath returns the photo with the given file path, or nil.
	GetByPath(ctx context.Context, filePath string) (*Photo, error)
	// ClaimNextPending atomically claims one pending photo for processing,
	// moving it to preprocessing so concurrent workers never share a photo.
	// Returns ErrNoPendingPhotos when the queue is empty.
	ClaimNextPending(ctx context.Context) (*Photo, error)
	// AdvanceState moves the photo forward; regressions return
	// ErrStateRegression.
	AdvanceState(ctx context.Context, id int64, state PhotoState) error
	// Finish sets a terminal state, the processed timestamp, and the error
	// message (empty on full success).
	Finish(ctx context.Context, id int64, state PhotoState, errorMessage string) error
	// SetPreprocessed records preprocessing output on the photo row.
	SetPreprocessed(ctx context.Context, id int64, thumbnailPath string, width, height int, fileSize int64) error
	// ResetForReprocessing is the one allowed backward transition: back to
	// pending, clearing the error message. Step rows are replaced by the
	// next run, not here.
	ResetForReprocessing(ctx context.Context, id int64) error
	// StateCounts returns the number of photos per state.
	StateCounts(ctx context.Context) (map[PhotoState]int, error)
}

// TagRepository manages object-detection results.
type TagRepository interface {
	// ReplaceDetections atomically replaces a photo's detection rows (all
	// instances) and its deduplicated tag rows from one pipeline run.
	ReplaceDetections(ctx context.Context, photoID int64, detections []DetectedTag, uniqueTags []PhotoTag) error
	// ListPhotoTags returns the deduplicated tags for a photo.
	ListPhotoTags(ctx context.Context, photoID int64) ([]PhotoTag, error)
}

// EmbeddingRepository manages semantic embeddings.
type EmbeddingRepository interface {
	// Replace upserts the current embedding for (photo, model version).
	Replace(ctx context.Context, photoID int64, embedding []float32, modelVersion string) error
	// Get returns the photo's current embedding, or nil.
	Get(ctx context.Context, photoID int64) (*StoredEmbedding, error)
	// All streams every stored embedding, used to build the in-memory index.
	All(ctx context.Context) ([]StoredEmbedding, error)
}

// OCRRepository manages extracted text.
type OCRRepository interface {
	// Replace swaps the photo's OCR row. An empty text deletes any prior
	// row and writes nothing.
	Replace(ctx context.Context, photoID int64, text, language string) error
	// Get returns the photo's OCR record, or nil.
	Get(ctx context.Context, photoID int64) (*OCRRecord, error)
}

// FaceRepository manages detected faces.
type FaceRepository interface {
	// ReplaceFaces atomically replaces the photo's face rows.
	ReplaceFaces(ctx context.Context, photoID int64, faces []StoredFace) error
	// CountForPhoto returns the number of faces on a photo.
	CountForPhoto(ctx context.Context, photoID int64) (int, error)
}

// HashRepository manages perceptual hashes and duplicate pairs.
type HashRepository interface {
	// Replace upserts the photo's hash row.
	Replace(ctx context.Context, photoID int64, hash string, quality float64) error
	// Get returns the photo's hash, or nil.
	Get(ctx context.Context, photoID int64) (*PhotoHash, error)
	// ListOthers returns every hash row except the given photo's. The
	// duplicate check is a documented linear scan; see DESIGN.md.
	ListOthers(ctx context.Context, photoID int64) ([]PhotoHash, error)
	// ListAll returns every hash row, used by maintenance commands.
	ListAll(ctx context.Context) ([]PhotoHash, error)
	// Update rewrites a stored hash value in place.
	Update(ctx context.Context, photoID int64, hash string) error
	// Delete removes a photo's hash row.
	Delete(ctx context.Context, photoID int64) error
	// UpsertDuplicate records a duplicate pair; photo order is normalized
	// and an existing pair is left untouched.
	UpsertDuplicate(ctx context.Context, photoID1, photoID2 int64, distance int) error
	// ListDuplicates returns duplicate pairs involving a photo.
	ListDuplicates(ctx context.Context, photoID int64) ([]DuplicatePair, error)
}

// CategoryRepository manages the category reference data.
type CategoryRepository interface {
	// Seed inserts categories and tag mappings, skipping existing names.
	Seed(ctx context.Context, mappings []CategoryMapping) error
	// List returns all categories.
	List(ctx context.Context) ([]Category, error)
	// TagCategories resolves tag strings to category ids; unmapped tags are
	// absent from the result.
	TagCategories(ctx context.Context, tags []string) (map[string]int64, error)
}

// SearchRepository provides the ranked sub-queries the search engine fuses.
type SearchRepository interface {
	// SearchOCR ranks completed photos by full-text relevance of their OCR
	// text against the query. Higher is better.
	SearchOCR(ctx context.Context, query string, limit int) ([]ScoredPhoto, error)
	// SearchTags ranks completed photos whose deduplicated tags match the
	// query (case-folded substring), scored by average confidence.
	SearchTags(ctx context.Context, query string, limit int) ([]ScoredPhoto, error)
	// SearchEmbeddings ranks completed photos by cosine similarity to the
	// query vector. Score is 1 - cosine distance; higher is better.
	SearchEmbeddings(ctx context.Context, embedding []float32, limit int) ([]ScoredPhoto, error)
	// FilterCandidates intersects candidate ids with the filters and
	// returns the survivors mapped to their creation timestamps (used for
	// deterministic tie-breaking).
	FilterCandidates(ctx context.Context, ids []int64, filters SearchFilters) (map[int64]time.Time, error)
}
