package chathub

import "skillswap/backend/internal/models"

// Client is one live push-capable connection owned by an identity.
// The hub only talks to connections through this interface, so tests and
// other transports can stand in for WebSocketClient.
type Client interface {
	// GetUserID returns the authenticated identity behind the connection.
	GetUserID() string
	// GetConnID returns an id unique to this connection, used to tell a newer
	// connection of the same identity from a superseded one.
	GetConnID() string

	// Enqueue queues ev for writing without blocking. It returns false when the
	// connection is closed or its buffer is full.
	Enqueue(ev models.Event) bool

	// Run starts the read and write pumps.
	Run()
	// Close stops the write pump, which closes the underlying connection.
	Close()
}
