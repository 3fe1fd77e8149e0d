package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jasl/photo-index/internal/search"
)

// Searcher answers ranked search queries.
type Searcher interface {
	Search(ctx context.Context, params search.Params) ([]search.Result, error)
}

// SearchHandler serves the hybrid search endpoint.
type SearchHandler struct {
	engine   Searcher
	photos   PhotoReader
	pageSize int
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(engine Searcher, photos PhotoReader, pageSize int) *SearchHandler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &SearchHandler{engine: engine, photos: photos, pageSize: pageSize}
}

type searchHit struct {
	photoView
	Score float64 `json:"score"`
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Search handles GET /api/v1/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := search.ParseMode(q.Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	from, err := parseDate(q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid 'from' date")
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid 'to' date")
		return
	}

	var categories []string
	for _, c := range strings.Split(q.Get("categories"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", h.pageSize)
	if pageSize < 1 || pageSize > 200 {
		pageSize = h.pageSize
	}

	params := search.Params{
		Query:          q.Get("q"),
		Mode:           mode,
		Categories:     categories,
		DateFrom:       from,
		DateTo:         to,
		HideDuplicates: q.Get("hide_duplicates") == "true",
		Limit:          pageSize,
		Offset:         (page - 1) * pageSize,
	}

	results, err := h.engine.Search(r.Context(), params)
	if err != nil {
		log.Printf("search %q failed: %v", sanitizeForLog(params.Query), err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		photo, err := h.photos.GetByID(r.Context(), res.PhotoID)
		if err != nil || photo == nil {
			continue
		}
		hits = append(hits, searchHit{photoView: toPhotoView(photo), Score: res.Score})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query":     params.Query,
		"mode":      string(mode),
		"page":      page,
		"page_size": pageSize,
		"count":     len(hits),
		"results":   hits,
	})
}
