package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mediarise/rubybot/internal/models"
)

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Transfer debits the sender, credits the recipient and appends the transfer
// row in one transaction. The debit re-checks the balance atomically, so an
// underfunded sender produces false with no partial effect.
func (r *TransferRepository) Transfer(ctx context.Context, fromID, toID int64, amount int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE users SET rubies = rubies - ?
WHERE user_id = ? AND rubies >= ?`, amount, fromID, amount)
	if err != nil {
		return false, fmt.Errorf("debit sender: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE users SET rubies = rubies + ? WHERE user_id = ?`, amount, toID); err != nil {
		return false, fmt.Errorf("credit recipient: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO transfers (from_user_id, to_user_id, amount) VALUES (?, ?, ?)`, fromID, toID, amount); err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transfer: %w", err)
	}
	return true, nil
}

// ListByUser returns the most recent transfers touching the user, in either
// direction, joined with the counterparty's display identity.
func (r *TransferRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.TransferEntry, error) {
	const query = `
SELECT t.id, t.from_user_id, t.to_user_id, t.amount, t.created_at,
       COALESCE(u.username, ''), COALESCE(u.first_name, '')
FROM transfers t
LEFT JOIN users u ON u.user_id = IF(t.from_user_id = ?, t.to_user_id, t.from_user_id)
WHERE t.from_user_id = ? OR t.to_user_id = ?
ORDER BY t.id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var entries []models.TransferEntry
	for rows.Next() {
		var e models.TransferEntry
		if err := rows.Scan(&e.ID, &e.FromUserID, &e.ToUserID, &e.Amount, &e.CreatedAt, &e.CounterpartUsername, &e.CounterpartFirstName); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
