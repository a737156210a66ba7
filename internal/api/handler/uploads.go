package handler

import (
	"net/http"

	"skillswap/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Upload stores the multipart "file" field and returns the media reference
// the client attaches to its next message.
func (h *Handler) Upload(c *gin.Context) {
	const op = "handler.Upload"
	fh, err := c.FormFile("file")
	if err != nil {
		h.respondError(c, apperr.New(apperr.ErrInvalidInput, op, "file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.ErrUpload, op, err))
		return
	}
	defer f.Close()

	ref, err := h.Uploads.Upload(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}
