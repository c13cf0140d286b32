package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mediarise/rubybot/internal/catalog"
	"github.com/mediarise/rubybot/internal/metrics"
	"github.com/mediarise/rubybot/internal/openrouter"
)

// ImageBackend produces images from prompts and resolves their bytes.
type ImageBackend interface {
	Generate(ctx context.Context, prompt, model string, images [][]byte) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Ledger is the balance surface GenerationService charges against.
type Ledger interface {
	Rubies(ctx context.Context, telegramID int64) (int, error)
	Deduct(ctx context.Context, telegramID int64, amount int) (bool, error)
}

// GenerationLog records completed generations.
type GenerationLog interface {
	Log(ctx context.Context, userID int64, prompt string, cost int, resultURL string) error
}

// ImageArchiver mirrors result images to durable storage.
type ImageArchiver interface {
	Archive(ctx context.Context, userID int64, data []byte, contentType string) (string, error)
}

type GenerationResult struct {
	Data       []byte
	Cost       int
	Remaining  int
	Model      string
	ArchiveURL string
}

// GenerationService runs the paid generation flow: price lookup, balance
// check, backend call, debit on success only.
type GenerationService struct {
	backend  ImageBackend
	ledger   Ledger
	genLog   GenerationLog
	archiver ImageArchiver
	catalog  *catalog.Catalog
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewGenerationService(
	backend ImageBackend,
	ledger Ledger,
	genLog GenerationLog,
	archiver ImageArchiver,
	cat *catalog.Catalog,
	m *metrics.Metrics,
	log *slog.Logger,
) *GenerationService {
	return &GenerationService{
		backend:  backend,
		ledger:   ledger,
		genLog:   genLog,
		archiver: archiver,
		catalog:  cat,
		metrics:  m,
		log:      log,
	}
}

// Generate produces one image for the user. The prompt may carry conditioning
// images. Rubies are deducted only after the backend returns a usable image;
// a failed generation never charges.
func (s *GenerationService) Generate(ctx context.Context, userID int64, prompt, modelName string, images [][]byte) (*GenerationResult, error) {
	model := s.resolveModel(modelName)
	if model == nil {
		return nil, ErrUnknownModel
	}
	cost := model.PriceRubies

	balance, err := s.ledger.Rubies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if balance < cost {
		return nil, ErrInsufficientRubies
	}

	raw, err := s.backend.Generate(ctx, prompt, model.Name, images)
	if err != nil {
		s.metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		s.log.Error("generation failed", "user_id", userID, "model", model.Name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	data, err := s.resolveImage(ctx, raw)
	if err != nil {
		s.metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		s.log.Error("generated image unavailable", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}

	charged, err := s.ledger.Deduct(ctx, userID, cost)
	if err != nil {
		return nil, fmt.Errorf("deduct %d rubies: %w", cost, err)
	}
	if !charged {
		// Balance changed between the check and the debit. The user keeps
		// what they have and the image is not delivered.
		return nil, ErrInsufficientRubies
	}
	s.metrics.GenerationsTotal.WithLabelValues("success").Inc()
	s.metrics.RubiesSpent.Add(float64(cost))

	result := &GenerationResult{
		Data:      data,
		Cost:      cost,
		Remaining: balance - cost,
		Model:     model.Name,
	}

	if s.archiver != nil {
		url, err := s.archiver.Archive(ctx, userID, data, http.DetectContentType(data))
		if err != nil {
			s.log.Warn("archive failed", "user_id", userID, "error", err)
		} else {
			result.ArchiveURL = url
		}
	}

	if err := s.genLog.Log(ctx, userID, prompt, cost, result.ArchiveURL); err != nil {
		s.log.Warn("generation log failed", "user_id", userID, "error", err)
	}

	s.log.Info("image generated",
		"user_id", userID,
		"model", model.Name,
		"cost", cost,
		"remaining", result.Remaining,
		"conditioning_images", len(images),
	)
	return result, nil
}

// Price reports what one generation on the given model costs, falling back
// to the default model.
func (s *GenerationService) Price(modelName string) (int, bool) {
	model := s.resolveModel(modelName)
	if model == nil {
		return 0, false
	}
	return model.PriceRubies, true
}

// resolveModel maps a user's selection to a catalog model. A selection that
// no longer resolves (removed or disabled since it was made) silently falls
// back to the catalog default.
func (s *GenerationService) resolveModel(name string) *catalog.Model {
	if name != "" {
		if model := s.catalog.ByName(name); model != nil && model.Enabled {
			return model
		}
	}
	return s.catalog.Default()
}

func (s *GenerationService) resolveImage(ctx context.Context, raw string) ([]byte, error) {
	if strings.HasPrefix(raw, "data:") {
		return openrouter.DecodeDataURL(raw)
	}
	return s.backend.Fetch(ctx, raw)
}
