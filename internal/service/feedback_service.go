package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

type feedbackEntry struct {
	Time     time.Time `json:"time"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Text     string    `json:"text"`
}

// FeedbackService appends user feedback to a JSON-lines file.
type FeedbackService struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

func NewFeedbackService(path string, log *slog.Logger) *FeedbackService {
	return &FeedbackService{path: path, log: log}
}

func (s *FeedbackService) Record(userID int64, username, text string) error {
	line, err := json.Marshal(feedbackEntry{
		Time:     time.Now().UTC(),
		UserID:   userID,
		Username: username,
		Text:     text,
	})
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write feedback: %w", err)
	}
	s.log.Info("feedback recorded", "user_id", userID)
	return nil
}
