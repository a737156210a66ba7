package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type devTokenRequest struct {
	UserID string `json:"userId"`
}

// IssueDevToken signs a bearer token for the requested identity, or a fresh
// random one. Mounted only in development; production tokens come from the
// identity provider.
func (h *Handler) IssueDevToken(c *gin.Context) {
	var req devTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
			return
		}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = uuid.NewString()
	}

	token, err := h.Auth.Issue(userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": userID})
}
