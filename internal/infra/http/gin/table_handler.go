package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"livelocal/internal/remote"
)

// TableHandler serves row CRUD over the data service.
type TableHandler struct {
	Service remote.Service
	Logger  *slog.Logger
}

type selectRequest struct {
	Filter  remote.Filter `json:"filter"`
	OrderBy string        `json:"order_by"`
	Desc    bool          `json:"desc"`
	Limit   int           `json:"limit"`
}

type mutateRequest struct {
	Filter remote.Filter `json:"filter"`
	Patch  remote.Row    `json:"patch"`
}

func (h TableHandler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	rows, err := h.Service.Select(c.Request.Context(), remote.SelectParams{
		Table:   c.Param("table"),
		Filter:  req.Filter,
		OrderBy: req.OrderBy,
		Desc:    req.Desc,
		Limit:   req.Limit,
	})
	if err != nil {
		h.fail(c, "select failed", err)
		return
	}
	if rows == nil {
		rows = []remote.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h TableHandler) Insert(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	var row remote.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	inserted, err := h.Service.Insert(c.Request.Context(), c.Param("table"), row)
	if err != nil {
		h.fail(c, "insert failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"row": inserted})
}

func (h TableHandler) Update(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	var req mutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	count, err := h.Service.Update(c.Request.Context(), c.Param("table"), req.Filter, req.Patch)
	if err != nil {
		h.fail(c, "update failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h TableHandler) Delete(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	var req mutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	count, err := h.Service.Delete(c.Request.Context(), c.Param("table"), req.Filter)
	if err != nil {
		h.fail(c, "delete failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h TableHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, remote.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate row"})
	case errors.Is(err, remote.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		if h.Logger != nil {
			h.Logger.Error(msg, "table", c.Param("table"), "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
