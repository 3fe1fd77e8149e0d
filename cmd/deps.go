package cmd

import (
	"errors"
	"fmt"

	"github.com/jasl/photo-index/internal/config"
	"github.com/jasl/photo-index/internal/database"
	"github.com/jasl/photo-index/internal/database/postgres"
	"github.com/jasl/photo-index/internal/inference"
	"github.com/jasl/photo-index/internal/pipeline"
)

// openStore loads configuration, connects to PostgreSQL, and runs pending
// migrations. Every command that touches the database goes through here.
func openStore() (*postgres.Store, *config.Config, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	store, err := postgres.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return store, cfg, nil
}

func newInferenceClient(cfg *config.Config) *inference.Client {
	return inference.NewClient(cfg.Inference.URL, cfg.Inference.EmbeddingDim, cfg.Inference.FaceDim)
}

func newProcessor(store *postgres.Store, cfg *config.Config) *pipeline.Processor {
	repos := pipeline.Repos{
		Photos:     store.Photos,
		Tags:       store.Tags,
		Embeddings: store.Embeddings,
		OCR:        store.OCR,
		Faces:      store.Faces,
		Hashes:     store.Hashes,
		Categories: store.Categories,
	}
	return pipeline.NewProcessor(repos, newInferenceClient(cfg), cfg)
}

func categoryMappings(seed config.CategorySeed) []database.CategoryMapping {
	mappings := make([]database.CategoryMapping, len(seed.Categories))
	for i, c := range seed.Categories {
		mappings[i] = database.CategoryMapping{
			Name:        c.Name,
			Description: c.Description,
			Tags:        c.Tags,
		}
	}
	return mappings
}
