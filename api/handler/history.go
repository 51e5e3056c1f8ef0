package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/mediagrab/history"
	"github.com/use-agent/mediagrab/models"
)

// ListHistory returns a handler for GET /api/v1/history, most recent first.
func ListHistory(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := store.List(c.Request.Context())
		if err != nil {
			respondCode(c, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to fetch history")
			return
		}
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		c.JSON(http.StatusOK, models.HistoryListResponse{
			Success: true,
			History: entries,
			Count:   len(entries),
		})
	}
}

// PostHistory returns a handler for POST /api/v1/history. An existing URL
// is updated in place and keeps its id.
func PostHistory(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.HistoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "URL and mediaCount are required")
			return
		}

		entry, err := store.Record(c.Request.Context(), history.Record{
			URL:        req.URL,
			MediaCount: *req.MediaCount,
			Title:      req.Title,
		})
		if err != nil {
			respondCode(c, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to save to history")
			return
		}
		c.JSON(http.StatusOK, models.HistoryEntryResponse{Success: true, History: entry})
	}
}

// DeleteHistory returns a handler for DELETE /api/v1/history/:id.
func DeleteHistory(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := store.Delete(c.Request.Context(), c.Param("id"))
		switch {
		case errors.Is(err, history.ErrNotFound):
			respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "History item not found")
			return
		case err != nil:
			respondCode(c, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to delete history item")
			return
		}
		c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "History item deleted"})
	}
}
