package models

import (
	"encoding/json"
	"strings"

	"skillswap/backend/internal/apperr"
)

// EventType names a realtime frame.
type EventType string

// Client -> server.
const (
	EventSetup       EventType = "setup"
	EventSendMessage EventType = "sendMessage"
	EventTyping      EventType = "typing"
	EventCallInvite  EventType = "callInvite"
	EventCallAccept  EventType = "callAccept"
	EventCallReject  EventType = "callReject"
	EventCallCancel  EventType = "callCancel"
	EventCallEnd     EventType = "callEnd"
)

// Server -> client.
const (
	EventConnected     EventType = "connected"
	EventAck           EventType = "ack"
	EventError         EventType = "error"
	EventNewMessage    EventType = "newMessage"
	EventMessagesRead  EventType = "messagesRead"
	EventIncomingCall  EventType = "incomingCall"
	EventCallAccepted  EventType = "callAccepted"
	EventCallRejected  EventType = "callRejected"
	EventCallCancelled EventType = "callCancelled"
	EventCallExpired   EventType = "callExpired"
	EventCallEnded     EventType = "callEnded"
	EventUserOnline    EventType = "userOnline"
	EventUserOffline   EventType = "userOffline"
)

// Envelope is the JSON frame exchanged over the socket.
type Envelope struct {
	Type    EventType       `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return apperr.New(apperr.ErrInvalidInput, "Envelope.Decode", "%s: payload is required", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return apperr.New(apperr.ErrInvalidInput, "Envelope.Decode", "%s: malformed payload", e.Type)
	}
	return nil
}

type SetupPayload struct {
	UserID string `json:"userId"`
}

type SendMessagePayload struct {
	ChatID string    `json:"chatId"`
	Text   string    `json:"text"`
	Media  *MediaRef `json:"media,omitempty"`
}

func (p SendMessagePayload) Body() MessageBody {
	return MessageBody{Text: p.Text, Media: p.Media}
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

type CallInvitePayload struct {
	TargetID string   `json:"targetId"`
	Kind     CallKind `json:"kind"`
}

// Validate checks the target and the call kind.
func (p CallInvitePayload) Validate() error {
	if strings.TrimSpace(p.TargetID) == "" {
		return apperr.New(apperr.ErrInvalidInput, "callInvite", "targetId is required")
	}
	if !p.Kind.Valid() {
		return apperr.New(apperr.ErrInvalidInput, "callInvite", "unsupported call kind %q", p.Kind)
	}
	return nil
}

// CallActionPayload carries the channel for accept, reject, cancel and end.
// An empty ChannelID refers to the caller's single pending call.
type CallActionPayload struct {
	ChannelID string `json:"channelId,omitempty"`
}

// Outbound payloads.

type ConnectedPayload struct {
	UserID string `json:"userId"`
	NodeID string `json:"nodeId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type IncomingCallPayload struct {
	ChannelID     string      `json:"channelId"`
	InitiatorID   string      `json:"initiatorId"`
	Kind          CallKind    `json:"kind"`
	InitiatorMeta ProfileMeta `json:"initiatorMeta"`
}

type CallStatusPayload struct {
	ChannelID string `json:"channelId"`
	PeerID    string `json:"peerId,omitempty"`
	Token     string `json:"token,omitempty"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type TypingNotice struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type MessagesReadPayload struct {
	ChatID    string `json:"chatId"`
	ReaderID  string `json:"readerId"`
	UpToSeq   int64  `json:"upToSeq"`
	ReadCount int    `json:"readCount"`
}

// Event is one outbound notification queued for a connection or relayed to
// another node. Message events carry the canonical record; the viewer-specific
// isMine flag is computed when the frame is written.
type Event struct {
	Type    EventType       `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Message *Message        `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with a JSON-encoded payload.
func NewEvent(t EventType, data any) Event {
	ev := Event{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// MessageEvent wraps a stored message as a newMessage event.
func MessageEvent(m *Message) Event {
	return Event{Type: EventNewMessage, Message: m}
}

// ErrorEvent renders err for the client.
func ErrorEvent(ref string, err error) Event {
	ev := NewEvent(EventError, ErrorPayload{Code: apperr.Code(err), Message: apperr.Message(err)})
	ev.Ref = ref
	return ev
}

// AckEvent confirms the inbound frame with the given ref.
func AckEvent(ref string, data any) Event {
	ev := NewEvent(EventAck, data)
	ev.Ref = ref
	return ev
}

// Frame renders ev as the envelope written to viewer.
func (ev Event) Frame(viewer string) ([]byte, error) {
	env := Envelope{Type: ev.Type, Ref: ev.Ref, Payload: ev.Data}
	if ev.Message != nil {
		raw, err := json.Marshal(ev.Message.View(viewer))
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// RelayKind says what a relay envelope asks the receiving node to do.
type RelayKind string

const (
	// RelayDeliver pushes Event to Target's connection. It is the zero value.
	RelayDeliver RelayKind = ""
	// RelaySupersede closes Target's connection ConnID, replaced on another node.
	RelaySupersede RelayKind = "supersede"
)

// RelayEnvelope is addressed to an identity connected to another node.
type RelayEnvelope struct {
	Kind   RelayKind `json:"kind,omitempty"`
	Target string    `json:"target"`
	Event  Event     `json:"event"`
	ConnID string    `json:"connId,omitempty"`
}
