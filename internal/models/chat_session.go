package models

import (
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ChatSession is a durable two-party conversation opened from one category
// (exchange, learn or teach) about one skill. The participant pair never changes.
type ChatSession struct {
	// ID is the session UUID.
	ID string `gorm:"primaryKey;type:uuid" json:"id"`
	// Participants holds exactly two identities, sorted.
	Participants pq.StringArray `gorm:"type:text[];not null;index:idx_chat_participants,type:gin" json:"participants"`
	// PairKey is "a|b" over the sorted pair; together with Category and SkillRef it
	// identifies the session for get-or-create.
	PairKey  string `gorm:"type:text;not null;uniqueIndex:idx_chat_pair_context" json:"-"`
	Category string `gorm:"type:text;not null;uniqueIndex:idx_chat_pair_context" json:"category"`
	SkillRef string `gorm:"type:text;not null;uniqueIndex:idx_chat_pair_context" json:"skillRef"`
	// MessageCount equals the sequence number of the newest message.
	MessageCount   int64     `gorm:"not null;default:0" json:"messageCount"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `gorm:"not null;index" json:"lastActivityAt"`
}

// SortedPair returns a and b in canonical order.
func SortedPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// PairKeyOf builds the PairKey for two identities.
func PairKeyOf(a, b string) string {
	return strings.Join(SortedPair(a, b), "|")
}

// HasParticipant reports whether identity belongs to the session.
func (s *ChatSession) HasParticipant(identity string) bool {
	for _, p := range s.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// Counterpart returns the participant that is not identity.
func (s *ChatSession) Counterpart(identity string) string {
	for _, p := range s.Participants {
		if p != identity {
			return p
		}
	}
	return ""
}

// SessionSummary is one row of a session listing.
type SessionSummary struct {
	Session     ChatSession
	UnreadCount int64
	LastMessage *Message
}
