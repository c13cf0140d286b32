package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
)

type User struct {
	TelegramID int64
	Username   string
	FirstName  string
	Rubies     int
	CreatedAt  time.Time
}

type Payment struct {
	ID        string
	UserID    int64
	Amount    decimal.Decimal
	Rubies    int
	Status    PaymentStatus
	CreatedAt time.Time
}

type Generation struct {
	ID        int64
	UserID    int64
	Prompt    string
	Cost      int
	ResultURL string
	CreatedAt time.Time
}

// TransferEntry is a transfer row joined with the counterparty's display
// identity, as listed in /history.
type TransferEntry struct {
	ID                   int64
	FromUserID           int64
	ToUserID             int64
	Amount               int
	CreatedAt            time.Time
	CounterpartUsername  string
	CounterpartFirstName string
}

// Outgoing reports whether the entry debited the given user.
func (t TransferEntry) Outgoing(userID int64) bool {
	return t.FromUserID == userID
}
