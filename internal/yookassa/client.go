package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mediarise/rubybot/internal/config"
)

type Client struct {
	shopID     string
	secretKey  string
	baseURL    string
	returnURL  string
	currency   string
	httpClient *http.Client
	log        *slog.Logger
}

// CreatedPayment is the gateway's answer to a create request. The gateway's
// id is the canonical payment id from here on.
type CreatedPayment struct {
	ID              string
	Status          string
	ConfirmationURL string
}

// PaymentInfo is the live status of a payment.
type PaymentInfo struct {
	ID       string
	Status   string
	Paid     bool
	Metadata map[string]any
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	return &Client{
		shopID:    cfg.YooKassaShopID,
		secretKey: cfg.YooKassaSecretKey,
		baseURL:   strings.TrimRight(cfg.YooKassaBaseURL, "/"),
		returnURL: cfg.YooKassaReturnURL,
		currency:  cfg.PaymentCurrency,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// CreatePayment creates a redirect-confirmed payment. A fresh uuid is sent as
// the Idempotence-Key so a retried create cannot double-charge.
func (c *Client) CreatePayment(ctx context.Context, amount decimal.Decimal, description string, metadata map[string]any) (*CreatedPayment, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    amount.StringFixed(2),
			"currency": c.currency,
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": c.returnURL,
		},
		"capture":     true,
		"description": description,
		"metadata":    metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(c.shopID, c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payment response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("yookassa create failed", "status", resp.StatusCode, "body", string(rawBody))
		}
		return nil, fmt.Errorf("yookassa error: status=%d", resp.StatusCode)
	}

	var parsed struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Confirmation struct {
			URL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if parsed.ID == "" || parsed.Confirmation.URL == "" {
		return nil, fmt.Errorf("invalid yookassa response (missing id or confirmation url)")
	}
	if parsed.Status == "" {
		parsed.Status = "pending"
	}
	return &CreatedPayment{
		ID:              parsed.ID,
		Status:          parsed.Status,
		ConfirmationURL: parsed.Confirmation.URL,
	}, nil
}

// GetPayment queries the live payment status.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("yookassa status failed", "status", resp.StatusCode, "payment_id", paymentID)
		}
		return nil, fmt.Errorf("yookassa error: status=%d", resp.StatusCode)
	}

	var parsed struct {
		ID       string         `json:"id"`
		Status   string         `json:"status"`
		Paid     bool           `json:"paid"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &PaymentInfo{
		ID:       parsed.ID,
		Status:   parsed.Status,
		Paid:     parsed.Paid,
		Metadata: parsed.Metadata,
	}, nil
}
