package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTransferCommitsDebitCreditAndLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET rubies = rubies - ").
		WithArgs(7, int64(1), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET rubies = rubies \+ `).
		WithArgs(7, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transfers").
		WithArgs(int64(1), int64(2), 7).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewTransferRepository(db)
	ok, err := repo.Transfer(context.Background(), 1, 2, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected transfer to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransferRollsBackWhenSenderUnderfunded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET rubies = rubies - ").
		WithArgs(100, int64(1), 100).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewTransferRepository(db)
	ok, err := repo.Transfer(context.Background(), 1, 2, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected transfer to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransferRollsBackOnCreditError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET rubies = rubies - ").
		WithArgs(5, int64(1), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET rubies = rubies \+ `).
		WithArgs(5, int64(2)).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	repo := NewTransferRepository(db)
	ok, err := repo.Transfer(context.Background(), 1, 2, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if ok {
		t.Fatal("failed transfer must not report success")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByUserJoinsCounterpart(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cols := []string{"id", "from_user_id", "to_user_id", "amount", "created_at", "username", "first_name"}
	mock.ExpectQuery("FROM transfers t").
		WithArgs(int64(1), int64(1), int64(1), 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(5), int64(1), int64(2), 7, time.Now(), "bob", "Bob").
			AddRow(int64(3), int64(2), int64(1), 4, time.Now(), "bob", "Bob"))

	repo := NewTransferRepository(db)
	entries, err := repo.ListByUser(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Outgoing(1) || entries[1].Outgoing(1) {
		t.Fatalf("unexpected directions: %#v", entries)
	}
	if entries[0].CounterpartUsername != "bob" {
		t.Fatalf("unexpected counterpart: %#v", entries[0])
	}
}
