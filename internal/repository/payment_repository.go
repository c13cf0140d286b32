package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mediarise/rubybot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (payment_id, user_id, amount, rubies, status)
VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, payment.ID, payment.UserID, payment.Amount, payment.Rubies, payment.Status); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = ? WHERE payment_id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, paymentID); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Find(ctx context.Context, paymentID string) (*models.Payment, error) {
	const query = `
SELECT payment_id, user_id, amount, rubies, status, created_at
FROM payments WHERE payment_id = ?`
	row := r.db.QueryRowContext(ctx, query, paymentID)
	var p models.Payment
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Rubies, &status, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func (r *PaymentRepository) ListRecent(ctx context.Context, limit int) ([]models.Payment, error) {
	const query = `
SELECT payment_id, user_id, amount, rubies, status, created_at
FROM payments ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		var status string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Rubies, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		p.Status = models.PaymentStatus(status)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
