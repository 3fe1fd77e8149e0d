package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jasl/photo-index/internal/database"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingRepository provides PostgreSQL-backed semantic embedding storage.
type EmbeddingRepository struct {
	pool *Pool
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository.
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// Replace upserts the current embedding for (photo, model version).
func (r *EmbeddingRepository) Replace(ctx context.Context, photoID int64, embedding []float32, modelVersion string) error {
	vec := pgvector.NewVector(embedding)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO semantic_embeddings (photo_id, embedding, model_version, dim)
		VALUES ($1, $2::vector, $3, $4)
		ON CONFLICT (photo_id, model_version) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`, photoID, vec, modelVersion, len(embedding))
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// Get returns the photo's current embedding, or nil.
func (r *EmbeddingRepository) Get(ctx context.Context, photoID int64) (*database.StoredEmbedding, error) {
	var emb database.StoredEmbedding
	var vec pgvector.Vector

	err := r.pool.QueryRow(ctx, `
		SELECT photo_id, embedding, model_version, dim, created_at
		FROM semantic_embeddings
		WHERE photo_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, photoID).Scan(&emb.PhotoID, &vec, &emb.ModelVersion, &emb.Dim, &emb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	emb.Embedding = vec.Slice()
	return &emb, nil
}

// All returns every stored embedding, used to build the in-memory index.
func (r *EmbeddingRepository) All(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT photo_id, embedding, model_version, dim, created_at
		FROM semantic_embeddings
		ORDER BY photo_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query all embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.PhotoID, &vec, &emb.ModelVersion, &emb.Dim, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// Count returns the total number of stored embeddings.
func (r *EmbeddingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM semantic_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ database.EmbeddingRepository = (*EmbeddingRepository)(nil)
