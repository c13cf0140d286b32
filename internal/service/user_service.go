package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mediarise/rubybot/internal/models"
	"github.com/mediarise/rubybot/internal/repository"
)

// UserService owns accounts and ruby balances.
type UserService struct {
	users          *repository.UserRepository
	startingRubies int
	log            *slog.Logger
}

func NewUserService(users *repository.UserRepository, startingRubies int, log *slog.Logger) *UserService {
	return &UserService{
		users:          users,
		startingRubies: startingRubies,
		log:            log,
	}
}

// Ensure registers the user on first contact with the starting grant and
// returns the account. Existing accounts are returned as stored.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
	user, created, err := s.users.GetOrCreate(ctx, telegramID, username, firstName, s.startingRubies)
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", telegramID, err)
	}
	if created {
		s.log.Info("new user registered",
			"user_id", telegramID,
			"username", username,
			"starting_rubies", s.startingRubies,
		)
	}
	return user, nil
}

func (s *UserService) Rubies(ctx context.Context, telegramID int64) (int, error) {
	return s.users.Rubies(ctx, telegramID)
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.users.FindByUsername(ctx, username)
}

// Grant credits rubies to an account, used by the admin surface.
func (s *UserService) Grant(ctx context.Context, telegramID int64, amount int) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	if user, err := s.users.FindByID(ctx, telegramID); err != nil {
		return err
	} else if user == nil {
		return ErrRecipientNotFound
	}
	if err := s.users.Add(ctx, telegramID, amount); err != nil {
		return fmt.Errorf("grant %d rubies to %d: %w", amount, telegramID, err)
	}
	s.log.Info("rubies granted", "user_id", telegramID, "amount", amount)
	return nil
}

func (s *UserService) List(ctx context.Context, limit int) ([]models.User, error) {
	return s.users.List(ctx, limit)
}

func (s *UserService) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	return s.users.ListTelegramIDs(ctx)
}
