package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediarise/rubybot/internal/admin"
	"github.com/mediarise/rubybot/internal/catalog"
	"github.com/mediarise/rubybot/internal/config"
	"github.com/mediarise/rubybot/internal/database"
	"github.com/mediarise/rubybot/internal/metrics"
	"github.com/mediarise/rubybot/internal/openrouter"
	"github.com/mediarise/rubybot/internal/repository"
	"github.com/mediarise/rubybot/internal/service"
	"github.com/mediarise/rubybot/internal/storage"
	"github.com/mediarise/rubybot/internal/telegram"
	"github.com/mediarise/rubybot/internal/yookassa"
	"github.com/mediarise/rubybot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	auditLog, auditCloser, err := logger.NewFile(cfg.InteractionLogPath)
	if err != nil {
		log.Fatalf("interaction log: %v", err)
	}
	defer auditCloser.Close()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	cat, err := catalog.Load(cfg.ModelsConfigPath)
	if err != nil {
		log.Fatalf("model catalog: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	m := metrics.New()
	imageClient := openrouter.NewClient(cfg, logr)

	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	transferRepo := repository.NewTransferRepository(db)

	var archiver service.ImageArchiver
	if cfg.ArchiveEnabled() {
		s3Archiver, err := storage.NewArchiver(cfg)
		if err != nil {
			log.Fatalf("storage archiver: %v", err)
		}
		archiver = s3Archiver
	}

	userService := service.NewUserService(userRepo, cfg.StartingRubies, logr)
	generationService := service.NewGenerationService(imageClient, userRepo, generationRepo, archiver, cat, m, logr)
	transferService := service.NewTransferService(transferRepo, userRepo, m, logr)
	feedbackService := service.NewFeedbackService(cfg.FeedbackPath, logr)

	var paymentService *service.PaymentService
	if cfg.PaymentsEnabled() {
		gateway := yookassa.NewClient(cfg, logr)
		paymentService = service.NewPaymentService(gateway, paymentRepo, userRepo, cfg.RubyPrice, cfg.MaxPurchaseRubies, m, logr)
	} else {
		logr.Warn("yookassa credentials missing, purchases disabled")
	}

	bot := telegram.NewBot(cfg, botAPI, logr, auditLog, userService, generationService, paymentService, transferService, feedbackService, cat)

	adminServer := admin.NewServer(
		cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword,
		logr, userService, paymentService, paymentRepo, cat, bot, m.Handler(),
	)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "error", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "error", err)
	}
}
