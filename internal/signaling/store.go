package signaling

import (
	"context"
	"errors"
	"sync"

	"skillswap/backend/internal/models"
)

// BusyError is returned by CallStore.Create when a party already takes part in
// a non-terminal call.
type BusyError struct {
	Identity string
}

func (e *BusyError) Error() string { return e.Identity + " is in another call" }

func busyIdentity(err error) (string, bool) {
	var b *BusyError
	if errors.As(err, &b) {
		return b.Identity, true
	}
	return "", false
}

// CallStore holds the non-terminal calls. Every node of a cluster must share
// one store so a call can be answered from any node.
type CallStore interface {
	// Create stores cs and marks both parties busy, or fails with *BusyError.
	Create(ctx context.Context, cs models.CallSession) error
	Get(ctx context.Context, channelID string) (models.CallSession, bool, error)
	// ActiveFor returns the channel identity is busy with.
	ActiveFor(ctx context.Context, identity string) (string, bool, error)
	// Update replaces the stored call with cs while its state is still from.
	// A terminal cs.State removes the call and frees both parties.
	Update(ctx context.Context, cs models.CallSession, from models.CallState) (bool, error)
}

// MemoryCallStore is the single-node CallStore.
type MemoryCallStore struct {
	mu      sync.Mutex
	calls   map[string]models.CallSession
	byParty map[string]string
}

var _ CallStore = (*MemoryCallStore)(nil)

func NewMemoryCallStore() *MemoryCallStore {
	return &MemoryCallStore{
		calls:   make(map[string]models.CallSession),
		byParty: make(map[string]string),
	}
}

func (s *MemoryCallStore) Create(_ context.Context, cs models.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{cs.InitiatorID, cs.TargetID} {
		if _, busy := s.byParty[id]; busy {
			return &BusyError{Identity: id}
		}
	}
	s.calls[cs.ChannelID] = cs
	s.byParty[cs.InitiatorID] = cs.ChannelID
	s.byParty[cs.TargetID] = cs.ChannelID
	return nil
}

func (s *MemoryCallStore) Get(_ context.Context, channelID string) (models.CallSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.calls[channelID]
	return cs, ok, nil
}

func (s *MemoryCallStore) ActiveFor(_ context.Context, identity string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byParty[identity]
	return id, ok, nil
}

func (s *MemoryCallStore) Update(_ context.Context, cs models.CallSession, from models.CallState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.calls[cs.ChannelID]
	if !ok || cur.State != from {
		return false, nil
	}
	if !cs.State.Terminal() {
		s.calls[cs.ChannelID] = cs
		return true, nil
	}
	delete(s.calls, cs.ChannelID)
	for _, id := range []string{cur.InitiatorID, cur.TargetID} {
		if s.byParty[id] == cs.ChannelID {
			delete(s.byParty, id)
		}
	}
	return true, nil
}
