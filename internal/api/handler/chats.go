package handler

import (
	"errors"
	"net/http"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/models"
	"skillswap/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type chatItem struct {
	ID             string              `json:"id"`
	Category       string              `json:"category"`
	SkillRef       string              `json:"skillRef"`
	Participants   []string            `json:"participants"`
	CounterpartID  string              `json:"counterpartId"`
	Counterpart    models.ProfileMeta  `json:"counterpart"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastActivityAt time.Time           `json:"lastActivityAt"`
	MessageCount   int64               `json:"messageCount"`
	UnreadCount    int64               `json:"unreadCount,omitempty"`
	LastMessage    *models.MessageView `json:"lastMessage,omitempty"`
}

type chatDetail struct {
	Chat     chatItem             `json:"chat"`
	Messages []models.MessageView `json:"messages"`
	PageInfo storage.PageInfo     `json:"pageInfo"`
}

type postMessageRequest struct {
	Text  string           `json:"text"`
	Media *models.MediaRef `json:"media"`
}

// ListChats returns the caller's sessions, most recently active first.
func (h *Handler) ListChats(c *gin.Context) {
	me := identity(c)
	page, size, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	summaries, total, err := h.Store.ListSessions(c.Request.Context(), me, page, size)
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]chatItem, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		item := h.chatItem(c, me, &s.Session)
		item.UnreadCount = s.UnreadCount
		if s.LastMessage != nil {
			view := s.LastMessage.View(me)
			item.LastMessage = &view
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"chats": items, "total": total, "page": page, "pageSize": size})
}

// GetChat returns one session with a window of its history. Fetching marks
// the counterpart's messages in the window as read.
func (h *Handler) GetChat(c *gin.Context) {
	me := identity(c)
	chatID := c.Param("chatId")
	page, size, err := paging(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	session, err := h.Store.GetSession(ctx, chatID, me)
	if err != nil {
		h.respondError(c, err)
		return
	}
	result, err := h.Hub.FetchPage(ctx, chatID, me, page, size)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]models.MessageView, 0, len(result.Messages))
	for i := range result.Messages {
		views = append(views, result.Messages[i].View(me))
	}
	c.JSON(http.StatusOK, chatDetail{
		Chat:     h.chatItem(c, me, session),
		Messages: views,
		PageInfo: result.Info,
	})
}

// PostMessage appends a message and pushes it to the other participant.
func (h *Handler) PostMessage(c *gin.Context) {
	me := identity(c)
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.New(apperr.ErrInvalidInput, "handler.PostMessage", "invalid request body"))
		return
	}

	msg, err := h.Hub.Send(c.Request.Context(), c.Param("chatId"), me, models.MessageBody{Text: req.Text, Media: req.Media})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg.View(me)})
}

func (h *Handler) chatItem(c *gin.Context, me string, s *models.ChatSession) chatItem {
	other := s.Counterpart(me)
	profile, err := h.Store.GetProfile(c.Request.Context(), other)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		h.Log.Debug("counterpart profile unavailable", zap.String("user_id", other), zap.Error(err))
	}
	return chatItem{
		ID:             s.ID,
		Category:       s.Category,
		SkillRef:       s.SkillRef,
		Participants:   s.Participants,
		CounterpartID:  other,
		Counterpart:    profile.Meta(),
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		MessageCount:   s.MessageCount,
	}
}
