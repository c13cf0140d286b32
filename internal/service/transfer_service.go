package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mediarise/rubybot/internal/metrics"
	"github.com/mediarise/rubybot/internal/models"
)

// TransferStore moves rubies between accounts atomically.
type TransferStore interface {
	Transfer(ctx context.Context, fromID, toID int64, amount int) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.TransferEntry, error)
}

// AccountLookup resolves accounts for transfer validation.
type AccountLookup interface {
	Rubies(ctx context.Context, telegramID int64) (int, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// TransferService handles /send: moving rubies from one user to another.
type TransferService struct {
	transfers TransferStore
	accounts  AccountLookup
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewTransferService(transfers TransferStore, accounts AccountLookup, m *metrics.Metrics, log *slog.Logger) *TransferService {
	return &TransferService{
		transfers: transfers,
		accounts:  accounts,
		metrics:   m,
		log:       log,
	}
}

// Send moves rubies from the sender to the named recipient. Validation runs
// in order: quantity, sender balance, recipient existence, self-transfer.
func (s *TransferService) Send(ctx context.Context, fromID int64, toUsername string, amount int) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidQuantity
	}

	balance, err := s.accounts.Rubies(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("check sender balance: %w", err)
	}
	if balance < amount {
		return nil, ErrInsufficientRubies
	}

	recipient, err := s.accounts.FindByUsername(ctx, strings.TrimPrefix(toUsername, "@"))
	if err != nil {
		return nil, fmt.Errorf("find recipient: %w", err)
	}
	if recipient == nil {
		return nil, ErrRecipientNotFound
	}
	if recipient.TelegramID == fromID {
		return nil, ErrSelfTransfer
	}

	ok, err := s.transfers.Transfer(ctx, fromID, recipient.TelegramID, amount)
	if err != nil {
		return nil, fmt.Errorf("transfer %d rubies: %w", amount, err)
	}
	if !ok {
		return nil, ErrInsufficientRubies
	}
	s.metrics.TransfersTotal.Inc()
	s.metrics.RubiesTransferred.Add(float64(amount))

	s.log.Info("rubies transferred",
		"from", fromID,
		"to", recipient.TelegramID,
		"amount", amount,
	)
	return recipient, nil
}

// History lists the user's transfers, newest first.
func (s *TransferService) History(ctx context.Context, userID int64, limit int) ([]models.TransferEntry, error) {
	return s.transfers.ListByUser(ctx, userID, limit)
}
