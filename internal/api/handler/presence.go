package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetPresence(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": h.Hub.IsOnline(c.Request.Context(), userID)})
}
