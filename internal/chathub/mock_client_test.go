package chathub_test

import (
	"sync"

	"skillswap/backend/internal/models"

	"github.com/google/uuid"
)

// MockClient records every event queued to it.
type MockClient struct {
	userID string
	connID string

	mu     sync.Mutex
	events []models.Event
	full   bool
	closed bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{userID: userID, connID: uuid.NewString()}
}

func (c *MockClient) GetUserID() string { return c.userID }
func (c *MockClient) GetConnID() string { return c.connID }

func (c *MockClient) Enqueue(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) setFull() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = true
}

func (c *MockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// eventsOf returns the queued events of type t, oldest first.
func (c *MockClient) eventsOf(t models.EventType) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
