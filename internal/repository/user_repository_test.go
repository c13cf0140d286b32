package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func userColumns() []string {
	return []string{"user_id", "username", "first_name", "rubies", "created_at"}
}

func TestGetOrCreateReturnsExistingUserUnchanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT user_id, COALESCE").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(42), "alice", "Alice", 7, time.Now()))

	repo := NewUserRepository(db)
	user, created, err := repo.GetOrCreate(context.Background(), 42, "alice-renamed", "Alicia", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("existing user reported as created")
	}
	// Stored profile wins; the call must not refresh it.
	if user.Username != "alice" || user.Rubies != 7 {
		t.Fatalf("unexpected user: %#v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrCreateInsertsWithStartingGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT user_id, COALESCE").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userColumns()))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(42), "alice", "Alice", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepository(db)
	user, created, err := repo.GetOrCreate(context.Background(), 42, "alice", "Alice", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("new user not reported as created")
	}
	if user.Rubies != 4 {
		t.Fatalf("expected starting grant 4, got %d", user.Rubies)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRubiesReturnsZeroForUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT rubies FROM users").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"rubies"}))

	repo := NewUserRepository(db)
	rubies, err := repo.Rubies(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rubies != 0 {
		t.Fatalf("expected 0 for unknown user, got %d", rubies)
	}
}

func TestDeductSucceedsWhenBalanceCovers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE users SET rubies = rubies - ").
		WithArgs(2, int64(42), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepository(db)
	ok, err := repo.Deduct(context.Background(), 42, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected deduct to succeed")
	}
}

func TestDeductFailsWithoutMutationWhenUnderfunded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// The conditional update matches no rows when rubies < amount.
	mock.ExpectExec("UPDATE users SET rubies = rubies - ").
		WithArgs(10, int64(42), 10).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewUserRepository(db)
	ok, err := repo.Deduct(context.Background(), 42, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected deduct to fail")
	}
}

func TestFindByUsernameIsCaseInsensitive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`LOWER\(username\) = LOWER\(\?\)`).
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(int64(42), "alice", "Alice", 7, time.Now()))

	repo := NewUserRepository(db)
	user, err := repo.FindByUsername(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.TelegramID != 42 {
		t.Fatalf("unexpected user: %#v", user)
	}
}

func TestFindByUsernameReturnsNilWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`LOWER\(username\) = LOWER\(\?\)`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumns()))

	repo := NewUserRepository(db)
	user, err := repo.FindByUsername(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil, got %#v", user)
	}
}
