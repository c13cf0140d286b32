package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mediarise/rubybot/internal/catalog"
	"github.com/mediarise/rubybot/internal/models"
	"github.com/mediarise/rubybot/internal/service"
)

// Notifier delivers messages to users, implemented by the telegram bot.
type Notifier interface {
	SendText(chatID int64, text string) error
}

// PaymentLister reads recent payments for the admin view.
type PaymentLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.Payment, error)
}

type Server struct {
	addr        string
	username    string
	password    string
	log         *slog.Logger
	users       *service.UserService
	payments    *service.PaymentService
	paymentRows PaymentLister
	catalog     *catalog.Catalog
	notifier    Notifier
	metrics     http.Handler
	router      *chi.Mux
}

func NewServer(
	addr, username, password string,
	log *slog.Logger,
	users *service.UserService,
	payments *service.PaymentService,
	paymentRows PaymentLister,
	cat *catalog.Catalog,
	notifier Notifier,
	metricsHandler http.Handler,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        addr,
		username:    username,
		password:    password,
		log:         log,
		users:       users,
		payments:    payments,
		paymentRows: paymentRows,
		catalog:     cat,
		notifier:    notifier,
		metrics:     metricsHandler,
		router:      r,
	}
	r.Get("/healthz", s.handleHealthz)
	r.Post("/webhook/yookassa", s.handleYooKassaWebhook)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Get("/users", s.handleListUsers)
		protected.Post("/users/{id}/rubies", s.handleGrantRubies)
		protected.Get("/payments", s.handleListPayments)
		protected.Post("/catalog/reload", s.handleCatalogReload)
		protected.Get("/metrics", s.handleMetrics)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "error", err)
		}
	}()

	s.log.Info("admin server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type webhookNotification struct {
	Event  string `json:"event"`
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
}

// handleYooKassaWebhook is the public endpoint for gateway status pushes.
// Crediting is idempotent, so repeated notifications are acknowledged.
func (s *Server) handleYooKassaWebhook(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		http.Error(w, "payments disabled", http.StatusServiceUnavailable)
		return
	}
	var note webhookNotification
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if note.Object.ID == "" {
		http.Error(w, "missing payment id", http.StatusBadRequest)
		return
	}
	if note.Event != "" && note.Event != "payment.succeeded" {
		w.WriteHeader(http.StatusOK)
		return
	}

	payment, err := s.payments.HandleWebhook(r.Context(), note.Object.ID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			http.Error(w, "unknown payment", http.StatusNotFound)
			return
		}
		if errors.Is(err, service.ErrPaymentPending) {
			// The gateway pushed succeeded but still reports unpaid on
			// poll; let it retry.
			http.Error(w, "payment not settled", http.StatusConflict)
			return
		}
		s.log.Error("yookassa webhook", "payment_id", note.Object.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.notifier != nil && payment != nil {
		if err := s.notifier.SendText(payment.UserID, fmt.Sprintf("Оплата получена! Начислено %d 💎.", payment.Rubies)); err != nil {
			s.log.Warn("notify payment", "user_id", payment.UserID, "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ids, err := s.users.ListTelegramIDs(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	sent := 0
	for _, id := range ids {
		if err := s.notifier.SendText(id, req.Message); err != nil {
			s.log.Error("send broadcast", "user_id", id, "error", err)
			continue
		}
		sent++
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  sent,
		"total": len(ids),
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 100)
	users, err := s.users.List(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

type grantRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleGrantRubies(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.users.Grant(r.Context(), id, req.Amount); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuantity):
			http.Error(w, "amount must be positive", http.StatusBadRequest)
		case errors.Is(err, service.ErrRecipientNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		default:
			s.internalError(w, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": id,
		"granted": req.Amount,
	})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	payments, err := s.paymentRows.ListRecent(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, _ *http.Request) {
	if err := s.catalog.Reload(); err != nil {
		s.log.Error("catalog reload", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"models": len(s.catalog.Enabled()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="rubybot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
