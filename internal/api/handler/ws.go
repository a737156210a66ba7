package handler

import (
	"context"
	"encoding/json"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/auth"
	"skillswap/backend/internal/chathub"
	"skillswap/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const closeTimeout = 5 * time.Second

var _ chathub.InboundHandler = (*Handler)(nil)

// ServeWebSocket authenticates the request and upgrades it. The connection
// is not registered until the client sends setup.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, err := h.Auth.Authenticate(auth.TokenFromRequest(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.Log.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(userID, conn, h, h.Log)
	time.AfterFunc(h.SetupTimeout, func() {
		if !client.IsSetup() {
			client.Log.Info("setup not received, closing")
			_ = conn.Close()
		}
	})
	client.Run()
}

// HandleInbound decodes one frame and dispatches it. Every request is answered
// with an ack or an error carrying the frame's ref.
func (h *Handler) HandleInbound(ctx context.Context, c *chathub.WebSocketClient, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		c.Enqueue(models.ErrorEvent("", apperr.New(apperr.ErrInvalidInput, "gateway", "malformed envelope")))
		return
	}

	if env.Type == models.EventSetup {
		h.handleSetup(ctx, c, env)
		return
	}
	if !c.IsSetup() {
		c.Enqueue(models.ErrorEvent(env.Ref, apperr.New(apperr.ErrUnauthenticated, "gateway", "setup required")))
		return
	}

	data, err := h.dispatch(ctx, c.UserID, env)
	if err != nil {
		if apperr.HTTPStatus(err) >= 500 {
			c.Log.Error("event failed", zap.String("type", string(env.Type)), zap.Error(err))
		}
		c.Enqueue(models.ErrorEvent(env.Ref, err))
		return
	}
	if data != nil || env.Ref != "" {
		c.Enqueue(models.AckEvent(env.Ref, data))
	}
}

// HandleClosed releases the connection's registry entry and settles any call
// it was part of. A superseded connection does neither.
func (h *Handler) HandleClosed(c *chathub.WebSocketClient) {
	if !c.IsSetup() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if h.Hub.Unregister(ctx, c) && h.Calls != nil {
		h.Calls.Disconnect(ctx, c.UserID)
	}
}

func (h *Handler) handleSetup(ctx context.Context, c *chathub.WebSocketClient, env models.Envelope) {
	var p models.SetupPayload
	if err := env.Decode(&p); err != nil {
		c.Enqueue(models.ErrorEvent(env.Ref, err))
		return
	}
	if p.UserID != c.UserID {
		c.Log.Warn("setup identity mismatch", zap.String("claimed", p.UserID))
		c.Enqueue(models.ErrorEvent(env.Ref, apperr.New(apperr.ErrForbidden, "gateway.setup", "identity does not match credentials")))
		c.Close()
		return
	}

	connected := models.NewEvent(models.EventConnected, models.ConnectedPayload{UserID: c.UserID, NodeID: h.Hub.NodeID()})
	connected.Ref = env.Ref
	if c.IsSetup() {
		c.Enqueue(connected)
		return
	}
	c.MarkSetup()
	h.Hub.Register(ctx, c)
	c.Enqueue(connected)
}

func (h *Handler) dispatch(ctx context.Context, userID string, env models.Envelope) (any, error) {
	switch env.Type {
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		msg, err := h.Hub.Send(ctx, p.ChatID, userID, p.Body())
		if err != nil {
			return nil, err
		}
		return msg.View(userID), nil

	case models.EventTyping:
		var p models.TypingPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return nil, h.Hub.Typing(ctx, p.ChatID, userID, p.IsTyping)

	case models.EventCallInvite:
		var p models.CallInvitePayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return h.Calls.Invite(ctx, userID, p.TargetID, p.Kind)

	case models.EventCallAccept:
		p, err := callAction(env)
		if err != nil {
			return nil, err
		}
		return h.Calls.Accept(ctx, userID, p.ChannelID)

	case models.EventCallReject:
		p, err := callAction(env)
		if err != nil {
			return nil, err
		}
		return nil, h.Calls.Reject(ctx, userID, p.ChannelID)

	case models.EventCallCancel:
		p, err := callAction(env)
		if err != nil {
			return nil, err
		}
		return nil, h.Calls.Cancel(ctx, userID, p.ChannelID)

	case models.EventCallEnd:
		p, err := callAction(env)
		if err != nil {
			return nil, err
		}
		return nil, h.Calls.End(ctx, userID, p.ChannelID)
	}
	return nil, apperr.New(apperr.ErrInvalidInput, "gateway", "unknown event type %q", env.Type)
}

// callAction decodes the optional channel payload of call actions.
func callAction(env models.Envelope) (models.CallActionPayload, error) {
	var p models.CallActionPayload
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return p, nil
	}
	err := env.Decode(&p)
	return p, err
}
