package chathub_test

import (
	"context"

	"skillswap/backend/internal/models"
	"skillswap/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify/mock implementation of storage.Storage for
// failure paths the in-memory store cannot produce.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) CreateSession(ctx context.Context, a, b, category, skillRef string) (*models.ChatSession, bool, error) {
	args := m.Called(ctx, a, b, category, skillRef)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.ChatSession), args.Bool(1), args.Error(2)
}

func (m *MockStorage) ListSessions(ctx context.Context, identity string, page, size int) ([]models.SessionSummary, int64, error) {
	args := m.Called(ctx, identity, page, size)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.SessionSummary), args.Get(1).(int64), args.Error(2)
}

func (m *MockStorage) GetSession(ctx context.Context, sessionID, requester string) (*models.ChatSession, error) {
	args := m.Called(ctx, sessionID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockStorage) AppendMessage(ctx context.Context, sessionID, sender string, body models.MessageBody) (*models.Message, error) {
	args := m.Called(ctx, sessionID, sender, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) GetMessagesPage(ctx context.Context, sessionID, requester string, page, size int) (*storage.MessagePage, error) {
	args := m.Called(ctx, sessionID, requester, page, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.MessagePage), args.Error(1)
}

func (m *MockStorage) CounterpartsOf(ctx context.Context, identity string) ([]string, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}
