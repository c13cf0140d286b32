package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mediarise/rubybot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `
SELECT user_id, COALESCE(username, ''), COALESCE(first_name, ''), rubies, created_at
FROM users WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var u models.User
	if err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.Rubies, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// FindByUsername resolves a user by display username, case-insensitively.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `
SELECT user_id, COALESCE(username, ''), COALESCE(first_name, ''), rubies, created_at
FROM users WHERE LOWER(username) = LOWER(?) LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, username)
	var u models.User
	if err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.Rubies, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user by username: %w", err)
	}
	return &u, nil
}

// GetOrCreate returns the existing user unchanged, or inserts a new row with
// the starting grant. Profile fields are deliberately not refreshed on
// existing rows. The bool is true when a new user was created.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username, firstName string, startingRubies int) (*models.User, bool, error) {
	user, err := r.FindByID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	const query = `
INSERT INTO users (user_id, username, first_name, rubies)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)`
	if _, err := r.db.ExecContext(ctx, query, telegramID, username, firstName, startingRubies); err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	return &models.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		Rubies:     startingRubies,
	}, true, nil
}

// Rubies returns the balance, or 0 for unknown users.
func (r *UserRepository) Rubies(ctx context.Context, telegramID int64) (int, error) {
	const query = `SELECT rubies FROM users WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var rubies int
	if err := row.Scan(&rubies); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan rubies: %w", err)
	}
	return rubies, nil
}

// Add unconditionally credits the balance.
func (r *UserRepository) Add(ctx context.Context, telegramID int64, amount int) error {
	const query = `UPDATE users SET rubies = rubies + ? WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, telegramID); err != nil {
		return fmt.Errorf("add rubies: %w", err)
	}
	return nil
}

// Deduct debits the balance only if it covers the amount. The conditional
// update is a single atomic step; two racing deducts cannot drive the balance
// negative.
func (r *UserRepository) Deduct(ctx context.Context, telegramID int64, amount int) (bool, error) {
	const query = `
UPDATE users SET rubies = rubies - ?
WHERE user_id = ? AND rubies >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, telegramID, amount)
	if err != nil {
		return false, fmt.Errorf("deduct rubies: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deduct rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *UserRepository) List(ctx context.Context, limit int) ([]models.User, error) {
	const query = `
SELECT user_id, COALESCE(username, ''), COALESCE(first_name, ''), rubies, created_at
FROM users ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.Rubies, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
