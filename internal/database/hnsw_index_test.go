package database

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func unitVec(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0, 0}
}

func TestHNSWIndex_BuildAndSearch(t *testing.T) {
	idx := NewHNSWIndex()
	if !idx.IsEmpty() {
		t.Fatal("new index should be empty")
	}

	err := idx.BuildFromEmbeddings([]StoredEmbedding{
		{PhotoID: 1, Embedding: unitVec(0)},
		{PhotoID: 2, Embedding: unitVec(0.1)},
		{PhotoID: 3, Embedding: unitVec(math.Pi / 2)},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if idx.Count() != 3 {
		t.Fatalf("count = %d", idx.Count())
	}

	ids, distances, err := idx.Search(unitVec(0), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}
	if distances[0] > 1e-6 {
		t.Errorf("distance to identical vector = %f", distances[0])
	}
	if distances[1] <= distances[0] {
		t.Errorf("distances not ascending: %v", distances)
	}
}

func TestHNSWIndex_SearchEmptyFails(t *testing.T) {
	idx := NewHNSWIndex()
	if _, _, err := idx.Search(unitVec(0), 5); err == nil {
		t.Fatal("expected error searching empty index")
	}
}

func TestHNSWIndex_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.hnsw")

	idx := NewHNSWIndex()
	idx.SetPath(path)
	if err := idx.BuildFromEmbeddings([]StoredEmbedding{
		{PhotoID: 10, Embedding: unitVec(0)},
		{PhotoID: 20, Embedding: unitVec(1)},
	}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewHNSWIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Count() != 2 {
		t.Fatalf("loaded count = %d", loaded.Count())
	}
	ids, _, err := loaded.Search(unitVec(0), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 10 {
		t.Errorf("ids = %v, want [10]", ids)
	}
}

func TestHNSWIndex_LoadMissingFile(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.hnsw")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if !idx.IsEmpty() {
		t.Error("index should stay empty after loading a missing file")
	}
}

type stubSearchRepo struct {
	semantic []ScoredPhoto
	calls    int
}

func (s *stubSearchRepo) SearchOCR(context.Context, string, int) ([]ScoredPhoto, error) {
	return nil, nil
}

func (s *stubSearchRepo) SearchTags(context.Context, string, int) ([]ScoredPhoto, error) {
	return nil, nil
}

func (s *stubSearchRepo) SearchEmbeddings(context.Context, []float32, int) ([]ScoredPhoto, error) {
	s.calls++
	return s.semantic, nil
}

func (s *stubSearchRepo) FilterCandidates(context.Context, []int64, SearchFilters) (map[int64]time.Time, error) {
	return nil, errors.New("not used")
}

func TestIndexedSearch_FallsBackWhenEmpty(t *testing.T) {
	repo := &stubSearchRepo{semantic: []ScoredPhoto{{PhotoID: 42, Score: 0.9}}}
	indexed := NewIndexedSearch(repo, NewHNSWIndex())

	results, err := indexed.SearchEmbeddings(context.Background(), unitVec(0), 5)
	if err != nil {
		t.Fatal(err)
	}
	if repo.calls != 1 || len(results) != 1 || results[0].PhotoID != 42 {
		t.Errorf("expected database fallback, got %v (calls=%d)", results, repo.calls)
	}
}

func TestIndexedSearch_ServesFromIndex(t *testing.T) {
	repo := &stubSearchRepo{}
	idx := NewHNSWIndex()
	if err := idx.BuildFromEmbeddings([]StoredEmbedding{
		{PhotoID: 1, Embedding: unitVec(0)},
		{PhotoID: 2, Embedding: unitVec(1.2)},
	}); err != nil {
		t.Fatal(err)
	}
	indexed := NewIndexedSearch(repo, idx)

	results, err := indexed.SearchEmbeddings(context.Background(), unitVec(0), 2)
	if err != nil {
		t.Fatal(err)
	}
	if repo.calls != 0 {
		t.Errorf("database should not be hit when the index is loaded")
	}
	if len(results) != 2 || results[0].PhotoID != 1 {
		t.Fatalf("results = %v", results)
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical vector score = %f, want ~1", results[0].Score)
	}
	if results[1].Score >= results[0].Score {
		t.Errorf("scores not descending: %v", results)
	}
}
