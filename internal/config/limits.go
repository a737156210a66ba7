package config

import "time"

const (
	// Messages
	MaxMessageTextLength = 1000
	DefaultPageSize      = 20
	MaxPageSize          = 100

	// Calls
	DefaultCallInviteTimeout = 30 * time.Second
	DefaultRelayTokenTTL     = time.Hour

	// WebSocket
	WriteWait          = 10 * time.Second
	PongWait           = 60 * time.Second
	PingPeriod         = (PongWait * 9) / 10
	MaxInboundEnvelope = 16 << 10
	SendBufferSize     = 256
	SetupTimeout       = 10 * time.Second

	// Uploads
	DefaultUploadMaxBytes = 25 << 20
)

// ChatCategories are the originating contexts a chat session can be opened from.
var ChatCategories = map[string]bool{
	"exchange": true,
	"learn":    true,
	"teach":    true,
}
