package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mediarise/rubybot/internal/metrics"
	"github.com/mediarise/rubybot/internal/models"
	"github.com/mediarise/rubybot/internal/yookassa"
)

// PaymentGateway is the YooKassa surface the service depends on.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal, description string, metadata map[string]any) (*yookassa.CreatedPayment, error)
	GetPayment(ctx context.Context, paymentID string) (*yookassa.PaymentInfo, error)
}

// PaymentStore persists payment rows keyed by the gateway's payment id.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	Find(ctx context.Context, paymentID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error
}

// Crediter adds purchased rubies to an account.
type Crediter interface {
	Add(ctx context.Context, telegramID int64, amount int) error
}

type InitiatedPayment struct {
	PaymentID       string
	ConfirmationURL string
	Amount          decimal.Decimal
	Rubies          int
}

// PaymentService sells rubies through the payment gateway. The gateway's
// payment id is canonical; a local row exists only once the gateway has
// accepted the payment.
type PaymentService struct {
	gateway   PaymentGateway
	payments  PaymentStore
	crediter  Crediter
	rubyPrice decimal.Decimal
	maxRubies int
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewPaymentService(
	gateway PaymentGateway,
	payments PaymentStore,
	crediter Crediter,
	rubyPrice decimal.Decimal,
	maxRubies int,
	m *metrics.Metrics,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		payments:  payments,
		crediter:  crediter,
		rubyPrice: rubyPrice,
		maxRubies: maxRubies,
		metrics:   m,
		log:       log,
	}
}

// Initiate creates a gateway payment for the requested quantity of rubies
// and records it as pending.
func (s *PaymentService) Initiate(ctx context.Context, userID int64, rubies int) (*InitiatedPayment, error) {
	if rubies < 1 || rubies > s.maxRubies {
		return nil, ErrInvalidQuantity
	}
	amount := s.rubyPrice.Mul(decimal.NewFromInt(int64(rubies)))

	created, err := s.gateway.CreatePayment(ctx, amount, fmt.Sprintf("Покупка рубинов: %d", rubies), map[string]any{
		"user_id": strconv.FormatInt(userID, 10),
		"rubies":  strconv.Itoa(rubies),
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway payment: %w", err)
	}

	payment := &models.Payment{
		ID:     created.ID,
		UserID: userID,
		Amount: amount,
		Rubies: rubies,
		Status: models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		// The gateway payment exists but we lost the local row. Confirm
		// can no longer credit it, so surface the failure to the user.
		s.log.Error("payment row insert failed", "payment_id", created.ID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("record payment %s: %w", created.ID, err)
	}

	s.log.Info("payment initiated",
		"payment_id", created.ID,
		"user_id", userID,
		"rubies", rubies,
		"amount", amount.StringFixed(2),
	)
	return &InitiatedPayment{
		PaymentID:       created.ID,
		ConfirmationURL: created.ConfirmationURL,
		Amount:          amount,
		Rubies:          rubies,
	}, nil
}

// Confirm checks the payment with the gateway and credits the rubies once.
// A payment already marked succeeded is never credited again.
func (s *PaymentService) Confirm(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.payments.Find(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("find payment %s: %w", paymentID, err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status == models.PaymentStatusSucceeded {
		return payment, ErrAlreadyProcessed
	}

	info, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query gateway for %s: %w", paymentID, err)
	}
	if !info.Paid {
		return payment, ErrPaymentPending
	}

	// Credit before flipping the status: a failed credit leaves the row
	// pending so a retry can still grant the rubies. The succeeded check
	// above keeps a completed payment from ever crediting twice.
	if err := s.crediter.Add(ctx, payment.UserID, payment.Rubies); err != nil {
		return nil, fmt.Errorf("credit %d rubies to %d: %w", payment.Rubies, payment.UserID, err)
	}
	if err := s.payments.UpdateStatus(ctx, paymentID, models.PaymentStatusSucceeded); err != nil {
		return nil, fmt.Errorf("mark payment %s succeeded: %w", paymentID, err)
	}
	s.metrics.PaymentsConfirmed.Inc()
	s.metrics.RubiesPurchased.Add(float64(payment.Rubies))

	payment.Status = models.PaymentStatusSucceeded
	s.log.Info("payment confirmed",
		"payment_id", paymentID,
		"user_id", payment.UserID,
		"rubies", payment.Rubies,
	)
	return payment, nil
}

// HandleWebhook processes a payment.succeeded notification. Repeats of an
// already-credited payment are acknowledged without effect.
func (s *PaymentService) HandleWebhook(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.Confirm(ctx, paymentID)
	if errors.Is(err, ErrAlreadyProcessed) {
		return payment, nil
	}
	return payment, err
}
