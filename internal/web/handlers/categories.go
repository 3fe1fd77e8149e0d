package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/jasl/photo-index/internal/database"
)

// CategoryReader lists the category reference data.
type CategoryReader interface {
	List(ctx context.Context) ([]database.Category, error)
}

// CategoriesHandler serves the category list.
type CategoriesHandler struct {
	categories CategoryReader
}

// NewCategoriesHandler creates a categories handler.
func NewCategoriesHandler(categories CategoryReader) *CategoriesHandler {
	return &CategoriesHandler{categories: categories}
}

type categoryView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// List handles GET /api/v1/categories.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		log.Printf("listing categories: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	views := make([]categoryView, len(categories))
	for i, c := range categories {
		views[i] = categoryView{ID: c.ID, Name: c.Name, Description: c.Description}
	}
	respondJSON(w, http.StatusOK, map[string]any{"categories": views})
}
