package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/mediagrab/models"
)

// respondError maps an error to its HTTP status and writes the JSON error
// body. Only the user-facing message leaves the process.
func respondError(c *gin.Context, err error, target models.Target) {
	se := models.AsScrapeError(err, target)
	status := mapErrorToStatus(se)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", c.FullPath(),
			"code", se.Code,
			"error", err,
		)
	}
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   se.Message,
		Code:    se.Code,
	})
}

// respondCode writes an error body for a failure detected in the handler.
func respondCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidURL, models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeForbidden:
		return http.StatusForbidden // 403
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeTimeout:
		return http.StatusRequestTimeout // 408
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
