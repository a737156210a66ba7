package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/config"
	"skillswap/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Storage is the chat store: sessions, their append-only message logs and the
// profile lookup used by notifications.
type Storage interface {
	// CreateSession returns the session for the pair, category and skill, creating
	// it when absent. created reports whether this call inserted it.
	CreateSession(ctx context.Context, a, b, category, skillRef string) (session *models.ChatSession, created bool, err error)
	ListSessions(ctx context.Context, identity string, page, size int) ([]models.SessionSummary, int64, error)
	GetSession(ctx context.Context, sessionID, requester string) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID, sender string, body models.MessageBody) (*models.Message, error)
	GetMessagesPage(ctx context.Context, sessionID, requester string, page, size int) (*MessagePage, error)

	// CounterpartsOf lists every identity sharing a session with identity.
	CounterpartsOf(ctx context.Context, identity string) ([]string, error)

	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
}

// Service is the PostgreSQL-backed Storage.
type Service struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Log: log}
}

// Migrate creates or updates the tables owned by the store.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(&models.ChatSession{}, &models.Message{}, &models.Profile{})
}

func validateSessionInput(a, b, category string) error {
	const op = "storage.CreateSession"
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return apperr.New(apperr.ErrInvalidInput, op, "both participants are required")
	}
	if a == b {
		return apperr.New(apperr.ErrInvalidInput, op, "a session needs two distinct participants")
	}
	if !config.ChatCategories[category] {
		return apperr.New(apperr.ErrInvalidInput, op, "unknown category %q", category)
	}
	return nil
}

// classify turns a driver or ORM failure into one of the apperr kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, op, err)
	}
	if isTransient(err) {
		return apperr.Wrap(apperr.ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
