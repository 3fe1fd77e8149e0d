package handlers

import (
	"context"
	"log"
	"net/http"
)

// DuplicateCounter reports how many duplicate pairs exist.
type DuplicateCounter interface {
	CountDuplicatePairs(ctx context.Context) (int, error)
}

// StatsHandler serves index-wide statistics.
type StatsHandler struct {
	photos     PhotoReader
	duplicates DuplicateCounter
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(photos PhotoReader, duplicates DuplicateCounter) *StatsHandler {
	return &StatsHandler{photos: photos, duplicates: duplicates}
}

// Stats handles GET /api/v1/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.photos.StateCounts(ctx)
	if err != nil {
		log.Printf("fetching state counts: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	total := 0
	states := make(map[string]int, len(counts))
	for state, n := range counts {
		states[string(state)] = n
		total += n
	}

	pairs, err := h.duplicates.CountDuplicatePairs(ctx)
	if err != nil {
		log.Printf("counting duplicate pairs: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total_photos":    total,
		"states":          states,
		"duplicate_pairs": pairs,
	})
}
