package postgres

import (
	"context"
	"fmt"

	"github.com/jasl/photo-index/internal/database"
)

// CategoryRepository provides PostgreSQL-backed category reference data.
type CategoryRepository struct {
	pool *Pool
}

// NewCategoryRepository creates a new PostgreSQL category repository.
func NewCategoryRepository(pool *Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Seed inserts categories and their tag mappings. Existing category names
// and tags are left untouched, so seeding is safe to repeat.
func (r *CategoryRepository) Seed(ctx context.Context, mappings []database.CategoryMapping) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range mappings {
		var categoryID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO categories (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET description = categories.description
			RETURNING id
		`, m.Name, m.Description).Scan(&categoryID)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", m.Name, err)
		}

		for _, tag := range m.Tags {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tag_category_mappings (tag, category_id)
				VALUES ($1, $2)
				ON CONFLICT (tag) DO NOTHING
			`, tag, categoryID); err != nil {
				return fmt.Errorf("seed tag mapping %q: %w", tag, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]database.Category, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, description FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []database.Category
	for rows.Next() {
		var c database.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// TagCategories resolves tag strings to category ids. Unmapped tags are
// simply absent from the result.
func (r *CategoryRepository) TagCategories(ctx context.Context, tags []string) (map[string]int64, error) {
	result := make(map[string]int64)
	if len(tags) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT tag, category_id
		FROM tag_category_mappings
		WHERE tag = ANY($1)
	`, stringArray(tags))
	if err != nil {
		return nil, fmt.Errorf("query tag categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		var categoryID int64
		if err := rows.Scan(&tag, &categoryID); err != nil {
			return nil, fmt.Errorf("scan tag category: %w", err)
		}
		result[tag] = categoryID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag categories: %w", err)
	}
	return result, nil
}

// Verify interface compliance
var _ database.CategoryRepository = (*CategoryRepository)(nil)
