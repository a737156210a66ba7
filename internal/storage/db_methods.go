package storage

import (
	"context"
	"errors"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateSession inserts the session keyed by (pair, category, skill) or returns
// the existing one.
func (s *Service) CreateSession(ctx context.Context, a, b, category, skillRef string) (*models.ChatSession, bool, error) {
	const op = "storage.CreateSession"
	if err := validateSessionInput(a, b, category); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	session := models.ChatSession{
		ID:             uuid.NewString(),
		Participants:   models.SortedPair(a, b),
		PairKey:        models.PairKeyOf(a, b),
		Category:       category,
		SkillRef:       skillRef,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&session)
	if res.Error != nil {
		return nil, false, classify(op, res.Error)
	}
	if res.RowsAffected == 1 {
		s.Log.Info("chat session created",
			zap.String("session_id", session.ID),
			zap.String("category", category),
			zap.Strings("participants", session.Participants))
		return &session, true, nil
	}

	var existing models.ChatSession
	err := s.withReadRetry(ctx, op, func() error {
		return s.DB.WithContext(ctx).
			Where("pair_key = ? AND category = ? AND skill_ref = ?", session.PairKey, category, skillRef).
			First(&existing).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// ListSessions returns the sessions of identity, most recently active first.
func (s *Service) ListSessions(ctx context.Context, identity string, page, size int) ([]models.SessionSummary, int64, error) {
	const op = "storage.ListSessions"
	page, size, err := NormalizePage(page, size)
	if err != nil {
		return nil, 0, err
	}

	mine := func() *gorm.DB {
		return s.DB.WithContext(ctx).Model(&models.ChatSession{}).Where("? = ANY(participants)", identity)
	}

	var total int64
	if err := s.withReadRetry(ctx, op, func() error { return mine().Count(&total).Error }); err != nil {
		return nil, 0, err
	}

	var sessions []models.ChatSession
	err = s.withReadRetry(ctx, op, func() error {
		sessions = sessions[:0]
		return mine().
			Order("last_activity_at DESC").
			Order("id DESC").
			Offset((page - 1) * size).
			Limit(size).
			Find(&sessions).Error
	})
	if err != nil {
		return nil, 0, err
	}
	if len(sessions) == 0 {
		return []models.SessionSummary{}, total, nil
	}

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}

	// Newest message of every listed session in one pass.
	var last []models.Message
	err = s.withReadRetry(ctx, op, func() error {
		last = last[:0]
		return s.DB.WithContext(ctx).Raw(`
			SELECT DISTINCT ON (session_id) *
			FROM messages
			WHERE session_id IN ?
			ORDER BY session_id, seq DESC`, ids).Scan(&last).Error
	})
	if err != nil {
		return nil, 0, err
	}

	type unreadRow struct {
		SessionID string
		Unread    int64
	}
	var unread []unreadRow
	err = s.withReadRetry(ctx, op, func() error {
		unread = unread[:0]
		return s.DB.WithContext(ctx).Model(&models.Message{}).
			Select("session_id, COUNT(*) AS unread").
			Where("session_id IN ? AND sender_id <> ? AND is_read = ?", ids, identity, false).
			Group("session_id").
			Scan(&unread).Error
	})
	if err != nil {
		return nil, 0, err
	}

	lastBySession := make(map[string]models.Message, len(last))
	for _, m := range last {
		lastBySession[m.SessionID] = m
	}
	unreadBySession := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadBySession[u.SessionID] = u.Unread
	}

	out := make([]models.SessionSummary, len(sessions))
	for i, sess := range sessions {
		out[i] = models.SessionSummary{Session: sess, UnreadCount: unreadBySession[sess.ID]}
		if m, ok := lastBySession[sess.ID]; ok {
			out[i].LastMessage = &m
		}
	}
	return out, total, nil
}

// GetSession loads a session and checks that requester belongs to it.
func (s *Service) GetSession(ctx context.Context, sessionID, requester string) (*models.ChatSession, error) {
	const op = "storage.GetSession"
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperr.New(apperr.ErrNotFound, op, "chat %s not found", sessionID)
	}

	var session models.ChatSession
	err := s.withReadRetry(ctx, op, func() error {
		return s.DB.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.New(apperr.ErrNotFound, op, "chat %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	if !session.HasParticipant(requester) {
		return nil, apperr.New(apperr.ErrForbidden, op, "not a participant of chat %s", sessionID)
	}
	return &session, nil
}

// AppendMessage stores a message under a row lock on its session, so sequence
// numbers and timestamps follow the commit order. It is never retried.
func (s *Service) AppendMessage(ctx context.Context, sessionID, sender string, body models.MessageBody) (*models.Message, error) {
	const op = "storage.AppendMessage"
	body, err := body.Normalize()
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperr.New(apperr.ErrNotFound, op, "chat %s not found", sessionID)
	}

	var msg models.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sessionID).
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.ErrNotFound, op, "chat %s not found", sessionID)
		}
		if err != nil {
			return err
		}
		if !session.HasParticipant(sender) {
			return apperr.New(apperr.ErrForbidden, op, "not a participant of chat %s", sessionID)
		}

		now := nextTimestamp(session.LastActivityAt)
		msg = models.Message{
			SessionID: session.ID,
			Seq:       session.MessageCount + 1,
			SenderID:  sender,
			Text:      body.Text,
			CreatedAt: now,
		}
		msg.SetMedia(body.Media)
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		return tx.Model(&models.ChatSession{}).
			Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"message_count":    msg.Seq,
				"last_activity_at": now,
			}).Error
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrForbidden) && !errors.Is(err, apperr.ErrNotFound) {
			s.Log.Error("append message failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, classify(op, err)
	}
	return &msg, nil
}

// GetMessagesPage returns a window of the log and marks the counterpart's
// messages in it as read. The returned messages reflect their state before
// the fetch.
func (s *Service) GetMessagesPage(ctx context.Context, sessionID, requester string, page, size int) (*MessagePage, error) {
	const op = "storage.GetMessagesPage"
	page, size, err := NormalizePage(page, size)
	if err != nil {
		return nil, err
	}
	session, err := s.GetSession(ctx, sessionID, requester)
	if err != nil {
		return nil, err
	}

	total := session.MessageCount
	start, end := Window(total, page, size)
	result := &MessagePage{Messages: []models.Message{}, Info: NewPageInfo(total, page, size)}
	if end <= start {
		return result, nil
	}

	err = s.withReadRetry(ctx, op, func() error {
		result.Messages = result.Messages[:0]
		return s.DB.WithContext(ctx).
			Where("session_id = ? AND seq > ? AND seq <= ?", sessionID, start, end).
			Order("seq ASC").
			Find(&result.Messages).Error
	})
	if err != nil {
		return nil, err
	}

	var upTo int64
	for _, m := range result.Messages {
		if m.SenderID != requester && !m.IsRead {
			upTo = m.Seq
		}
	}
	if upTo == 0 {
		return result, nil
	}

	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("session_id = ? AND seq > ? AND seq <= ? AND sender_id <> ? AND is_read = ?", sessionID, start, end, requester, false).
		Update("is_read", true)
	if res.Error != nil {
		s.Log.Warn("mark messages read failed", zap.String("session_id", sessionID), zap.Error(res.Error))
		return result, nil
	}
	result.NewlyRead = int(res.RowsAffected)
	result.ReadUpToSeq = upTo
	return result, nil
}

// CounterpartsOf lists the distinct identities sharing a session with identity.
func (s *Service) CounterpartsOf(ctx context.Context, identity string) ([]string, error) {
	const op = "storage.CounterpartsOf"
	var sessions []models.ChatSession
	err := s.withReadRetry(ctx, op, func() error {
		sessions = sessions[:0]
		return s.DB.WithContext(ctx).
			Select("participants").
			Where("? = ANY(participants)", identity).
			Find(&sessions).Error
	})
	if err != nil {
		return nil, err
	}
	return counterparts(sessions, identity), nil
}

// GetProfile returns the display data for an identity.
func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	const op = "storage.GetProfile"
	var profile models.Profile
	err := s.withReadRetry(ctx, op, func() error {
		return s.DB.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile upserts a profile.
func (s *Service) SaveProfile(ctx context.Context, profile *models.Profile) error {
	return classify("storage.SaveProfile", s.DB.WithContext(ctx).Save(profile).Error)
}

// nextTimestamp returns now, or just after last when the clock has not moved
// past it, keeping message times strictly increasing within a session.
func nextTimestamp(last time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	return now
}

func counterparts(sessions []models.ChatSession, identity string) []string {
	seen := make(map[string]struct{}, len(sessions))
	out := make([]string, 0, len(sessions))
	for i := range sessions {
		other := sessions[i].Counterpart(identity)
		if other == "" {
			continue
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out
}
