package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/pixmint/genapi/internal/model"
)

// Repository provides read-only lookups into the style and prompt
// catalogs. A missing entry is not an error: lookups report absence
// through their bool return and the caller proceeds without override.
type Repository struct {
	db *dbpg.DB
}

func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// GetStyleBySlug returns the style with the given slug, if any.
func (r *Repository) GetStyleBySlug(ctx context.Context, slug string) (model.Style, bool, error) {
	query := `
		SELECT id, slug, name, base_prompt
		FROM styles
		WHERE slug = $1
	`

	var s model.Style
	err := r.db.Master.QueryRowContext(ctx, query, slug).Scan(&s.ID, &s.Slug, &s.Name, &s.BasePrompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Style{}, false, nil
		}
		return model.Style{}, false, fmt.Errorf("get style: %w", err)
	}

	return s, true, nil
}

// GetPromptByID returns the prompt template with the given id, if any.
func (r *Repository) GetPromptByID(ctx context.Context, id uuid.UUID) (model.PromptTemplate, bool, error) {
	query := `
		SELECT id, title, body
		FROM prompt_templates
		WHERE id = $1
	`

	var p model.PromptTemplate
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Title, &p.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PromptTemplate{}, false, nil
		}
		return model.PromptTemplate{}, false, fmt.Errorf("get prompt: %w", err)
	}

	return p, true, nil
}

// ListStyles returns all catalog styles.
func (r *Repository) ListStyles(ctx context.Context) ([]model.Style, error) {
	query := `
		SELECT id, slug, name, base_prompt
		FROM styles
		ORDER BY slug
	`

	rows, err := r.db.Master.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list styles: query failed: %w", err)
	}
	defer rows.Close()

	var styles []model.Style
	for rows.Next() {
		var s model.Style
		if err := rows.Scan(&s.ID, &s.Slug, &s.Name, &s.BasePrompt); err != nil {
			return nil, fmt.Errorf("list styles: scan failed: %w", err)
		}
		styles = append(styles, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list styles: rows failed: %w", err)
	}

	return styles, nil
}
