package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/models"

	"github.com/google/uuid"
)

type memSession struct {
	mu       sync.Mutex
	session  models.ChatSession
	messages []models.Message
}

// MemoryStore is an in-process Storage used in development without a
// database and in tests. Appends serialize per session.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	byKey    map[string]string
	profiles map[string]models.Profile
	nextID   uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		byKey:    make(map[string]string),
		profiles: make(map[string]models.Profile),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, a, b, category, skillRef string) (*models.ChatSession, bool, error) {
	if err := validateSessionInput(a, b, category); err != nil {
		return nil, false, err
	}
	key := models.PairKeyOf(a, b) + "#" + category + "#" + skillRef

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[key]; ok {
		ms := s.sessions[id]
		ms.mu.Lock()
		defer ms.mu.Unlock()
		session := ms.session
		return &session, false, nil
	}

	now := time.Now().UTC()
	ms := &memSession{session: models.ChatSession{
		ID:             uuid.NewString(),
		Participants:   models.SortedPair(a, b),
		PairKey:        models.PairKeyOf(a, b),
		Category:       category,
		SkillRef:       skillRef,
		CreatedAt:      now,
		LastActivityAt: now,
	}}
	s.sessions[ms.session.ID] = ms
	s.byKey[key] = ms.session.ID
	session := ms.session
	return &session, true, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, identity string, page, size int) ([]models.SessionSummary, int64, error) {
	page, size, err := NormalizePage(page, size)
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	var all []models.SessionSummary
	for _, ms := range s.sessions {
		ms.mu.Lock()
		if ms.session.HasParticipant(identity) {
			sum := models.SessionSummary{Session: ms.session}
			for i := range ms.messages {
				if ms.messages[i].SenderID != identity && !ms.messages[i].IsRead {
					sum.UnreadCount++
				}
			}
			if n := len(ms.messages); n > 0 {
				last := ms.messages[n-1]
				sum.LastMessage = &last
			}
			all = append(all, sum)
		}
		ms.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].Session, all[j].Session
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.ID > b.ID
	})

	total := int64(len(all))
	from := (page - 1) * size
	if from >= len(all) {
		return []models.SessionSummary{}, total, nil
	}
	to := from + size
	if to > len(all) {
		to = len(all)
	}
	return all[from:to], total, nil
}

func (s *MemoryStore) lookup(op, sessionID, requester string) (*memSession, error) {
	s.mu.RLock()
	ms, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, op, "chat %s not found", sessionID)
	}
	// Participants never change after creation, so no lock is needed here.
	if !ms.session.HasParticipant(requester) {
		return nil, apperr.New(apperr.ErrForbidden, op, "not a participant of chat %s", sessionID)
	}
	return ms, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID, requester string) (*models.ChatSession, error) {
	ms, err := s.lookup("storage.GetSession", sessionID, requester)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	session := ms.session
	return &session, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, sessionID, sender string, body models.MessageBody) (*models.Message, error) {
	body, err := body.Normalize()
	if err != nil {
		return nil, err
	}
	ms, err := s.lookup("storage.AppendMessage", sessionID, sender)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	now := nextTimestamp(ms.session.LastActivityAt)
	msg := models.Message{
		ID:        id,
		SessionID: sessionID,
		Seq:       int64(len(ms.messages)) + 1,
		SenderID:  sender,
		Text:      body.Text,
		CreatedAt: now,
	}
	msg.SetMedia(body.Media)
	ms.messages = append(ms.messages, msg)
	ms.session.MessageCount = msg.Seq
	ms.session.LastActivityAt = now
	return &msg, nil
}

func (s *MemoryStore) GetMessagesPage(_ context.Context, sessionID, requester string, page, size int) (*MessagePage, error) {
	page, size, err := NormalizePage(page, size)
	if err != nil {
		return nil, err
	}
	ms, err := s.lookup("storage.GetMessagesPage", sessionID, requester)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	total := int64(len(ms.messages))
	start, end := Window(total, page, size)
	result := &MessagePage{Messages: []models.Message{}, Info: NewPageInfo(total, page, size)}
	if end <= start {
		return result, nil
	}
	result.Messages = append(result.Messages, ms.messages[start:end]...)
	for i := start; i < end; i++ {
		m := &ms.messages[i]
		if m.SenderID != requester && !m.IsRead {
			m.IsRead = true
			result.NewlyRead++
			result.ReadUpToSeq = m.Seq
		}
	}
	return result, nil
}

func (s *MemoryStore) CounterpartsOf(_ context.Context, identity string) ([]string, error) {
	s.mu.RLock()
	sessions := make([]models.ChatSession, 0, len(s.sessions))
	for _, ms := range s.sessions {
		if ms.session.HasParticipant(identity) {
			ms.mu.Lock()
			sessions = append(sessions, ms.session)
			ms.mu.Unlock()
		}
	}
	s.mu.RUnlock()
	return counterparts(sessions, identity), nil
}

func (s *MemoryStore) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "storage.GetProfile", "profile %s not found", id)
	}
	return &p, nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, profile *models.Profile) error {
	if err := profile.BeforeCreate(nil); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = *profile
	return nil
}
