package ginserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"livelocal/internal/remote"
)

// FunctionHandler invokes registered server-side functions.
type FunctionHandler struct {
	Service remote.Service
	Logger  *slog.Logger
}

func (h FunctionHandler) Invoke(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var payload any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}
	name := c.Param("name")
	result, err := h.Service.Invoke(c.Request.Context(), name, payload)
	switch {
	case err == nil:
		c.Data(http.StatusOK, "application/json", result)
	case errors.Is(err, remote.ErrUnknownFunction):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown function"})
	default:
		if h.Logger != nil {
			h.Logger.Error("function invocation failed", "function", name, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invocation failed"})
	}
}
