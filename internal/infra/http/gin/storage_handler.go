package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"livelocal/internal/remote"
)

// StorageHandler uploads objects through the platform object store.
type StorageHandler struct {
	Storage remote.Storage
	Logger  *slog.Logger
}

func (h StorageHandler) Upload(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object key required"})
		return
	}
	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := h.Storage.Upload(c.Request.Context(), key, c.Request.Body, contentType)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("object upload failed", "key", key, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "url": url})
}
