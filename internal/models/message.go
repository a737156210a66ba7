package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/config"
)

// MediaKind is the type of an attached media reference.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Valid reports whether k is one of the supported kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaVideo, MediaAudio, MediaDocument:
		return true
	}
	return false
}

// MediaRef points at a file held by the external object store.
type MediaRef struct {
	URL        string    `json:"url"`
	Kind       MediaKind `json:"kind"`
	ExternalID string    `json:"externalId"`
}

// Message is an immutable entry in a ChatSession log. Only IsRead changes after append.
type Message struct {
	// ID is the global row id.
	ID uint `gorm:"primaryKey"`
	// SessionID and Seq locate the message; Seq starts at 1 and has no gaps.
	SessionID string `gorm:"type:uuid;not null;uniqueIndex:idx_session_seq"`
	Seq       int64  `gorm:"not null;uniqueIndex:idx_session_seq"`
	// SenderID is always the raw identity of the sender.
	SenderID string `gorm:"type:text;not null;index"`
	// Text is the trimmed body, possibly empty when media is attached.
	Text            string    `gorm:"type:text;not null;default:''"`
	MediaURL        string    `gorm:"type:text"`
	MediaKind       MediaKind `gorm:"type:text"`
	MediaExternalID string    `gorm:"type:text"`
	IsRead          bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
}

// Media returns the attached reference, or nil.
func (m *Message) Media() *MediaRef {
	if m.MediaURL == "" {
		return nil
	}
	return &MediaRef{URL: m.MediaURL, Kind: m.MediaKind, ExternalID: m.MediaExternalID}
}

// SetMedia copies ref into the flat media columns.
func (m *Message) SetMedia(ref *MediaRef) {
	if ref == nil {
		m.MediaURL, m.MediaKind, m.MediaExternalID = "", "", ""
		return
	}
	m.MediaURL, m.MediaKind, m.MediaExternalID = ref.URL, ref.Kind, ref.ExternalID
}

// MessageView is a message as seen by one participant.
type MessageView struct {
	ID        uint      `json:"id"`
	ChatID    string    `json:"chatId"`
	Seq       int64     `json:"seq"`
	SenderID  string    `json:"senderId"`
	IsMine    bool      `json:"isMine"`
	Text      string    `json:"text,omitempty"`
	Media     *MediaRef `json:"media,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// View renders m for viewer.
func (m *Message) View(viewer string) MessageView {
	return MessageView{
		ID:        m.ID,
		ChatID:    m.SessionID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		IsMine:    m.SenderID == viewer,
		Text:      m.Text,
		Media:     m.Media(),
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
}

// MessageBody is the caller-supplied content of a new message.
type MessageBody struct {
	Text  string    `json:"text"`
	Media *MediaRef `json:"media,omitempty"`
}

// Normalize trims the text and checks the body invariant: at least one of
// non-empty text or media, text at most MaxMessageTextLength characters,
// media with a URL and a supported kind.
func (b MessageBody) Normalize() (MessageBody, error) {
	const op = "MessageBody.Normalize"
	out := MessageBody{Text: strings.TrimSpace(b.Text)}

	if n := utf8.RuneCountInString(out.Text); n > config.MaxMessageTextLength {
		return out, apperr.New(apperr.ErrInvalidInput, op, "text is %d characters, limit is %d", n, config.MaxMessageTextLength)
	}
	if b.Media != nil {
		media := *b.Media
		media.URL = strings.TrimSpace(media.URL)
		if media.URL == "" {
			return out, apperr.New(apperr.ErrInvalidInput, op, "media url is required")
		}
		if !media.Kind.Valid() {
			return out, apperr.New(apperr.ErrInvalidInput, op, "unsupported media kind %q", media.Kind)
		}
		out.Media = &media
	}
	if out.Text == "" && out.Media == nil {
		return out, apperr.New(apperr.ErrInvalidInput, op, "message needs text or media")
	}
	return out, nil
}
