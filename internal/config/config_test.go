package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Inference.URL != "http://localhost:8000" {
		t.Errorf("expected default inference URL, got %q", cfg.Inference.URL)
	}
	if cfg.Inference.EmbeddingDim != 1024 {
		t.Errorf("expected embedding dim 1024, got %d", cfg.Inference.EmbeddingDim)
	}
	if cfg.Processing.DuplicateThreshold != 8 {
		t.Errorf("expected duplicate threshold 8, got %d", cfg.Processing.DuplicateThreshold)
	}
	if cfg.Search.RRFK != 60 {
		t.Errorf("expected RRF k=60, got %d", cfg.Search.RRFK)
	}
	if cfg.Search.TopK != 100 {
		t.Errorf("expected search top-k 100, got %d", cfg.Search.TopK)
	}
	if cfg.Photos.ThumbnailSize != 400 {
		t.Errorf("expected thumbnail size 400, got %d", cfg.Photos.ThumbnailSize)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DUPLICATE_THRESHOLD", "12")
	t.Setenv("PIPELINE_WORKERS", "2")
	t.Setenv("NOISY_DETECTION_TAGS", "person, chair")
	t.Setenv("HNSW_ENABLED", "true")

	cfg := Load()

	if cfg.Processing.DuplicateThreshold != 12 {
		t.Errorf("expected duplicate threshold 12, got %d", cfg.Processing.DuplicateThreshold)
	}
	if cfg.Processing.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Processing.Workers)
	}
	if len(cfg.Filtering.NoisyTags) != 2 || cfg.Filtering.NoisyTags[1] != "chair" {
		t.Errorf("unexpected noisy tags: %v", cfg.Filtering.NoisyTags)
	}
	if !cfg.Search.HNSWEnabled {
		t.Error("expected HNSW enabled")
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "not-a-number")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "-3")

	cfg := Load()

	if cfg.Search.TopK != 100 {
		t.Errorf("expected fallback top-k 100, got %d", cfg.Search.TopK)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected fallback 25, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_EmbeddedCategorySeed(t *testing.T) {
	cfg := Load()

	if len(cfg.Categories.Categories) == 0 {
		t.Fatal("expected embedded category seed data")
	}

	var found bool
	for _, c := range cfg.Categories.Categories {
		if c.Name == "people" {
			found = true
			if len(c.Tags) == 0 {
				t.Error("people category has no tags")
			}
		}
	}
	if !found {
		t.Error("expected a 'people' category in the seed data")
	}
}
