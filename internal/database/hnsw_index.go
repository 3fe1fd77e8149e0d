package database

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps an in-memory HNSW graph over photo semantic embeddings.
// Keys are photo IDs. The index is a cache in front of the database: it can
// always be rebuilt from the semantic_embeddings table, and search falls back
// to a database scan when the index is not loaded.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	mu         sync.RWMutex
	path       string
	count      int
	buildTime  time.Time
}

// NewHNSWIndex creates a new empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromEmbeddings replaces the index contents with the given embeddings.
func (h *HNSWIndex) BuildFromEmbeddings(embeddings []StoredEmbedding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embeddings) == 0 {
		h.graph = nil
		h.savedGraph = nil
		h.count = 0
		return nil
	}

	g := newGraph()
	added := 0
	for i := range embeddings {
		e := &embeddings[i]
		if len(e.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.PhotoID, e.Embedding))
		added++
	}

	h.graph = g
	h.savedGraph = nil
	h.count = added
	h.buildTime = time.Now()
	return nil
}

// Add inserts or updates a single photo embedding in the index.
func (h *HNSWIndex) Add(photoID int64, embedding []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embedding) == 0 {
		return nil
	}

	if h.savedGraph != nil {
		h.savedGraph.Add(hnsw.MakeNode(photoID, embedding))
		h.count++
		return nil
	}

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(photoID, embedding))
	h.count++
	return nil
}

// Search finds the k nearest photos to the query embedding.
// Returns photo IDs and their cosine distances, nearest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[int64]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	ids := make([]int64, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		if len(n.Value) > 0 {
			distances[i] = float64(CosineDistance(query, n.Value))
		}
	}

	return ids, distances, nil
}

// Count returns the number of indexed embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// IsEmpty reports whether no graph data is loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// SetPath sets the file used by Save.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the index to the configured path. A nil graph removes the
// file so a stale index is never loaded on the next start.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}

	if h.graph == nil && h.savedGraph == nil {
		_ = os.Remove(h.path)
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if h.savedGraph != nil {
		if err := h.savedGraph.Export(f); err != nil {
			return fmt.Errorf("failed to export HNSW graph: %w", err)
		}
		return nil
	}
	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	return nil
}

// Load restores the index from disk. A missing file is not an error; the
// caller rebuilds from the database in that case.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.savedGraph = saved
	h.graph = nil
	h.count = saved.Len()
	return nil
}
