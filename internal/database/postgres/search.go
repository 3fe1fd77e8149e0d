package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jasl/photo-index/internal/database"
	"github.com/pgvector/pgvector-go"
)

// SearchRepository provides the ranked sub-queries fused by the search
// engine. All sub-queries rank completed photos only.
type SearchRepository struct {
	pool *Pool
}

// NewSearchRepository creates a new PostgreSQL search repository.
func NewSearchRepository(pool *Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

func scanScored(rows *sql.Rows) ([]database.ScoredPhoto, error) {
	var results []database.ScoredPhoto
	for rows.Next() {
		var sp database.ScoredPhoto
		if err := rows.Scan(&sp.PhotoID, &sp.Score); err != nil {
			return nil, fmt.Errorf("scan scored photo: %w", err)
		}
		results = append(results, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored photos: %w", err)
	}
	return results, nil
}

// SearchOCR ranks photos by full-text relevance of their extracted text.
func (r *SearchRepository) SearchOCR(ctx context.Context, query string, limit int) ([]database.ScoredPhoto, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.photo_id, ts_rank(o.text_vector, plainto_tsquery('english', $1)) AS score
		FROM ocr_records o
		JOIN photos p ON p.id = o.photo_id
		WHERE p.state = $2
		  AND o.text_vector @@ plainto_tsquery('english', $1)
		ORDER BY score DESC, o.photo_id
		LIMIT $3
	`, query, database.StateCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("query ocr matches: %w", err)
	}
	defer rows.Close()

	return scanScored(rows)
}

// SearchTags ranks photos whose deduplicated tags contain the query as a
// case-folded substring, scored by average matching-tag confidence.
func (r *SearchRepository) SearchTags(ctx context.Context, query string, limit int) ([]database.ScoredPhoto, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.photo_id, AVG(t.confidence) AS score
		FROM photo_tags t
		JOIN photos p ON p.id = t.photo_id
		WHERE p.state = $2
		  AND t.tag ILIKE '%' || $1 || '%'
		GROUP BY t.photo_id
		ORDER BY score DESC, t.photo_id
		LIMIT $3
	`, query, database.StateCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("query tag matches: %w", err)
	}
	defer rows.Close()

	return scanScored(rows)
}

// SearchEmbeddings ranks photos by cosine similarity to the query vector.
// Score is 1 - cosine distance, so higher is better.
func (r *SearchRepository) SearchEmbeddings(ctx context.Context, embedding []float32, limit int) ([]database.ScoredPhoto, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, `
		SELECT e.photo_id, 1 - (e.embedding <=> $1::vector) AS score
		FROM semantic_embeddings e
		JOIN photos p ON p.id = e.photo_id
		WHERE p.state = $2
		ORDER BY e.embedding <=> $1::vector
		LIMIT $3
	`, vec, database.StateCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("query embedding matches: %w", err)
	}
	defer rows.Close()

	return scanScored(rows)
}

// FilterCandidates intersects candidate ids with the filters, keeping only
// completed photos. Survivors are returned with their creation timestamps
// for deterministic tie-breaking.
func (r *SearchRepository) FilterCandidates(ctx context.Context, ids []int64, filters database.SearchFilters) (map[int64]time.Time, error) {
	result := make(map[int64]time.Time)
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT p.id, p.created_at
		FROM photos p
		WHERE p.id = ANY($1)
		  AND p.state = $2
	`
	args := []any{int64Array(ids), database.StateCompleted}

	if len(filters.Categories) > 0 {
		args = append(args, stringArray(filters.Categories))
		query += fmt.Sprintf(`
		  AND EXISTS (
			SELECT 1
			FROM photo_tags t
			JOIN categories c ON c.id = t.category_id
			WHERE t.photo_id = p.id AND c.name = ANY($%d)
		  )`, len(args))
	}
	if filters.DateFrom != nil {
		args = append(args, *filters.DateFrom)
		query += fmt.Sprintf(" AND p.created_at >= $%d", len(args))
	}
	if filters.DateTo != nil {
		args = append(args, *filters.DateTo)
		query += fmt.Sprintf(" AND p.created_at <= $%d", len(args))
	}
	if filters.HideDuplicates {
		// Keep the canonical (lower id) photo of each pair.
		query += `
		  AND NOT EXISTS (
			SELECT 1 FROM duplicate_pairs d WHERE d.photo_id_2 = p.id
		  )`
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var createdAt time.Time
		if err := rows.Scan(&id, &createdAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		result[id] = createdAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return result, nil
}

// Verify interface compliance
var _ database.SearchRepository = (*SearchRepository)(nil)
