package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mediarise/rubybot/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Log appends one generation to the audit trail. Rows are never updated.
func (r *GenerationRepository) Log(ctx context.Context, userID int64, prompt string, cost int, resultURL string) error {
	const query = `
INSERT INTO generations (user_id, prompt, cost, result_url)
VALUES (?, ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, userID, prompt, cost, resultURL); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func (r *GenerationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Generation, error) {
	const query = `
SELECT id, user_id, prompt, cost, COALESCE(result_url, ''), created_at
FROM generations WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var gens []models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.UserID, &g.Prompt, &g.Cost, &g.ResultURL, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}
