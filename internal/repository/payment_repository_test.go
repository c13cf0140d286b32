package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/mediarise/rubybot/internal/models"
)

func TestPaymentCreateInsertsPendingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	amount := decimal.NewFromInt(50)
	mock.ExpectExec("INSERT INTO payments").
		WithArgs("pay-1", int64(42), amount, 50, models.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPaymentRepository(db)
	err = repo.Create(context.Background(), &models.Payment{
		ID:     "pay-1",
		UserID: 42,
		Amount: amount,
		Rubies: 50,
		Status: models.PaymentStatusPending,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPaymentFindReturnsNilWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cols := []string{"payment_id", "user_id", "amount", "rubies", "status", "created_at"}
	mock.ExpectQuery("FROM payments WHERE payment_id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(cols))

	repo := NewPaymentRepository(db)
	p, err := repo.Find(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil payment, got %#v", p)
	}
}

func TestPaymentFindScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cols := []string{"payment_id", "user_id", "amount", "rubies", "status", "created_at"}
	mock.ExpectQuery("FROM payments WHERE payment_id").
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("pay-1", int64(42), "50.00", 50, "pending", time.Now()))

	repo := NewPaymentRepository(db)
	p, err := repo.Find(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Status != models.PaymentStatusPending || p.Rubies != 50 {
		t.Fatalf("unexpected payment: %#v", p)
	}
	if !p.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected amount: %s", p.Amount)
	}
}

func TestPaymentUpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(models.PaymentStatusSucceeded, "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPaymentRepository(db)
	if err := repo.UpdateStatus(context.Background(), "pay-1", models.PaymentStatusSucceeded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
