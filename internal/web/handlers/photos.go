package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jasl/photo-index/internal/database"
)

// PhotoReader is the photo access the gallery handlers need.
type PhotoReader interface {
	GetByID(ctx context.Context, id int64) (*database.Photo, error)
	ListRecent(ctx context.Context, limit, offset int) ([]database.Photo, error)
	StateCounts(ctx context.Context) (map[database.PhotoState]int, error)
}

// TagReader lists a photo's deduplicated tags.
type TagReader interface {
	ListPhotoTags(ctx context.Context, photoID int64) ([]database.PhotoTag, error)
}

// OCRReader fetches a photo's extracted text.
type OCRReader interface {
	Get(ctx context.Context, photoID int64) (*database.OCRRecord, error)
}

// FaceReader counts a photo's detected faces.
type FaceReader interface {
	CountForPhoto(ctx context.Context, photoID int64) (int, error)
}

// DuplicateReader lists a photo's duplicate pairs.
type DuplicateReader interface {
	ListDuplicates(ctx context.Context, photoID int64) ([]database.DuplicatePair, error)
}

// PhotosHandler serves the read-only photo endpoints.
type PhotosHandler struct {
	photos     PhotoReader
	tags       TagReader
	ocr        OCRReader
	faces      FaceReader
	duplicates DuplicateReader
	pageSize   int
}

// NewPhotosHandler creates a photos handler.
func NewPhotosHandler(photos PhotoReader, tags TagReader, ocr OCRReader, faces FaceReader, duplicates DuplicateReader, pageSize int) *PhotosHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &PhotosHandler{
		photos:     photos,
		tags:       tags,
		ocr:        ocr,
		faces:      faces,
		duplicates: duplicates,
		pageSize:   pageSize,
	}
}

type photoView struct {
	ID           int64      `json:"id"`
	Filename     string     `json:"filename"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	FileSize     int64      `json:"file_size"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url"`
}

func toPhotoView(p *database.Photo) photoView {
	return photoView{
		ID:           p.ID,
		Filename:     p.Filename,
		State:        string(p.State),
		CreatedAt:    p.CreatedAt,
		ProcessedAt:  p.ProcessedAt,
		Width:        p.Width,
		Height:       p.Height,
		FileSize:     p.FileSize,
		ErrorMessage: p.ErrorMessage,
		ThumbnailURL: fmt.Sprintf("/api/v1/photos/%d/thumbnail", p.ID),
	}
}

type tagView struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
	CategoryID *int64  `json:"category_id,omitempty"`
}

type duplicateView struct {
	PhotoID  int64 `json:"photo_id"`
	Distance int   `json:"distance"`
}

type photoDetail struct {
	photoView
	Tags       []tagView       `json:"tags"`
	OCRText    string          `json:"ocr_text,omitempty"`
	FaceCount  int             `json:"face_count"`
	Duplicates []duplicateView `json:"duplicates"`
}

func photoID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// List returns the gallery page: completed and partial photos, newest first.
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", h.pageSize)
	if pageSize < 1 || pageSize > 200 {
		pageSize = h.pageSize
	}

	photos, err := h.photos.ListRecent(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		log.Printf("listing photos: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list photos")
		return
	}

	views := make([]photoView, len(photos))
	for i := range photos {
		views[i] = toPhotoView(&photos[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"photos":    views,
	})
}

// Get returns one photo with its tags, text, face count, and duplicates.
func (h *PhotosHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := photoID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	ctx := r.Context()
	photo, err := h.photos.GetByID(ctx, id)
	if err != nil {
		log.Printf("fetching photo %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to fetch photo")
		return
	}
	if photo == nil {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}

	detail := photoDetail{
		photoView:  toPhotoView(photo),
		Tags:       []tagView{},
		Duplicates: []duplicateView{},
	}

	tags, err := h.tags.ListPhotoTags(ctx, id)
	if err != nil {
		log.Printf("fetching tags for photo %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to fetch photo")
		return
	}
	for _, t := range tags {
		detail.Tags = append(detail.Tags, tagView{Tag: t.Tag, Confidence: t.Confidence, CategoryID: t.CategoryID})
	}

	if rec, err := h.ocr.Get(ctx, id); err == nil && rec != nil {
		detail.OCRText = rec.Text
	}

	if count, err := h.faces.CountForPhoto(ctx, id); err == nil {
		detail.FaceCount = count
	}

	pairs, err := h.duplicates.ListDuplicates(ctx, id)
	if err != nil {
		log.Printf("fetching duplicates for photo %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to fetch photo")
		return
	}
	for _, p := range pairs {
		other := p.PhotoID1
		if other == id {
			other = p.PhotoID2
		}
		detail.Duplicates = append(detail.Duplicates, duplicateView{PhotoID: other, Distance: p.HammingDistance})
	}

	respondJSON(w, http.StatusOK, detail)
}

// Thumbnail streams a photo's thumbnail file.
func (h *PhotosHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := photoID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	photo, err := h.photos.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("fetching photo %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to fetch photo")
		return
	}
	if photo == nil || photo.ThumbnailPath == "" {
		respondError(w, http.StatusNotFound, "thumbnail not found")
		return
	}
	if _, err := os.Stat(photo.ThumbnailPath); err != nil {
		log.Printf("thumbnail missing for photo %d: %s", id, sanitizeForLog(photo.ThumbnailPath))
		respondError(w, http.StatusNotFound, "thumbnail not found")
		return
	}

	http.ServeFile(w, r, photo.ThumbnailPath)
}
