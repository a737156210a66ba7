package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/auth"
	"skillswap/backend/internal/chathub"
	"skillswap/backend/internal/config"
	"skillswap/backend/internal/models"
	"skillswap/backend/internal/signaling"
	"skillswap/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Uploader stores a raw media file and returns the reference to attach to a message.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader) (*models.MediaRef, error)
}

// Handler is the session gateway: HTTP routes plus the WebSocket dispatch loop.
type Handler struct {
	Hub     *chathub.ManagerService
	Calls   *signaling.Coordinator
	Store   storage.Storage
	Auth    *auth.Service
	Uploads Uploader
	Log     *zap.Logger

	// SetupTimeout bounds the wait for the setup frame after an upgrade.
	SetupTimeout time.Duration
	// DevTokens enables the unauthenticated token endpoint.
	DevTokens bool

	upgrader websocket.Upgrader
}

func NewHandler(hub *chathub.ManagerService, calls *signaling.Coordinator, store storage.Storage, authSvc *auth.Service, uploads Uploader, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Hub:          hub,
		Calls:        calls,
		Store:        store,
		Auth:         authSvc,
		Uploads:      uploads,
		Log:          log,
		SetupTimeout: config.SetupTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.ServeWebSocket)
	if h.DevTokens {
		r.POST("/auth/dev-token", h.IssueDevToken)
	}

	api := r.Group("/api", h.Auth.Middleware())
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:chatId", h.GetChat)
	api.POST("/chats/:chatId/messages", h.PostMessage)
	api.POST("/uploads", h.Upload)
	api.GET("/presence/:userId", h.GetPresence)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node": h.Hub.NodeID()})
}

// originChecker allows any origin when the list is empty (development).
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "code": apperr.Code(err)})
}

func identity(c *gin.Context) string {
	id, _ := auth.IdentityFromContext(c)
	return id
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.New(apperr.ErrInvalidInput, "handler.queryInt", "%s must be an integer", key)
	}
	return n, nil
}

func paging(c *gin.Context) (page, size int, err error) {
	if page, err = queryInt(c, "page"); err != nil {
		return 0, 0, err
	}
	if size, err = queryInt(c, "pageSize"); err != nil {
		return 0, 0, err
	}
	return storage.NormalizePage(page, size)
}
