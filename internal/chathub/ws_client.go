package chathub

import (
	"context"
	"sync"

	"skillswap/backend/internal/config"
	"skillswap/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// InboundHandler receives raw frames read from a WebSocketClient. Frames of
// one connection are handled one at a time, in arrival order.
type InboundHandler interface {
	HandleInbound(ctx context.Context, c *WebSocketClient, raw []byte)
	// HandleClosed runs once after the read pump stops.
	HandleClosed(c *WebSocketClient)
}

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	UserID  string
	ConnID  string
	Conn    *websocket.Conn
	Handler InboundHandler
	Log     *zap.Logger

	send chan models.Event

	mu     sync.RWMutex
	closed bool

	setupOnce sync.Once
	setup     chan struct{}
}

func NewWebSocketClient(userID string, conn *websocket.Conn, handler InboundHandler, log *zap.Logger) *WebSocketClient {
	if log == nil {
		log = zap.NewNop()
	}
	connID := uuid.NewString()
	return &WebSocketClient{
		UserID:  userID,
		ConnID:  connID,
		Conn:    conn,
		Handler: handler,
		Log:     log.With(zap.String("user_id", userID), zap.String("conn_id", connID)),
		send:    make(chan models.Event, config.SendBufferSize),
		setup:   make(chan struct{}),
	}
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }
func (c *WebSocketClient) GetConnID() string { return c.ConnID }

// Enqueue never blocks the caller; a full buffer means a slow reader.
func (c *WebSocketClient) Enqueue(ev models.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which stops writePump and the connection.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// MarkSetup records that the setup handshake completed.
func (c *WebSocketClient) MarkSetup() {
	c.setupOnce.Do(func() { close(c.setup) })
}

// IsSetup reports whether MarkSetup has been called.
func (c *WebSocketClient) IsSetup() bool {
	select {
	case <-c.setup:
		return true
	default:
		return false
	}
}
