package database

import "context"

// IndexedSearch is a SearchRepository that answers semantic queries from an
// in-memory HNSW index instead of a database scan. Keyword queries and
// candidate filtering still go to the wrapped repository, as does semantic
// search while the index is empty. Because the index may contain photos in
// any state, the filter step downstream keeps the completed-only contract.
type IndexedSearch struct {
	SearchRepository
	index *HNSWIndex
}

// NewIndexedSearch wraps repo with the given index.
func NewIndexedSearch(repo SearchRepository, index *HNSWIndex) *IndexedSearch {
	return &IndexedSearch{SearchRepository: repo, index: index}
}

func (s *IndexedSearch) SearchEmbeddings(ctx context.Context, embedding []float32, limit int) ([]ScoredPhoto, error) {
	if s.index == nil || s.index.IsEmpty() {
		return s.SearchRepository.SearchEmbeddings(ctx, embedding, limit)
	}

	ids, distances, err := s.index.Search(embedding, limit)
	if err != nil {
		return s.SearchRepository.SearchEmbeddings(ctx, embedding, limit)
	}

	scored := make([]ScoredPhoto, len(ids))
	for i := range ids {
		scored[i] = ScoredPhoto{PhotoID: ids[i], Score: 1 - distances[i]}
	}
	return scored, nil
}
