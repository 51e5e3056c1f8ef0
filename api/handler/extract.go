package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/mediagrab/cache"
	"github.com/use-agent/mediagrab/history"
	"github.com/use-agent/mediagrab/models"
)

// MediaExtractor is implemented by *extractor.Extractor.
type MediaExtractor interface {
	Extract(ctx context.Context, pageURL string) (*models.ExtractResult, error)
}

// Extract returns a handler for POST /api/v1/extract.
//
// Flow:
//  1. Parse request.
//  2. Serve from cache when max_age allows.
//  3. Extract → ordered media list.
//  4. Record the page in history, store in cache, respond.
//
// cc and hist may be nil.
func Extract(x MediaExtractor, cc *cache.Cache, hist history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Invalid request body")
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "URL is required")
			return
		}

		cacheStatus := ""
		var result *models.ExtractResult
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cache.Key(req.URL), req.MaxAge); hit {
				result, cacheStatus = cached, "hit"
			}
		}

		if result == nil {
			var err error
			result, err = x.Extract(c.Request.Context(), req.URL)
			if err != nil {
				respondError(c, err, models.TargetPage)
				return
			}
			if cc != nil && req.MaxAge > 0 {
				cc.Set(cache.Key(req.URL), result)
				cacheStatus = "miss"
			}
		}

		if hist != nil {
			if _, err := hist.Record(c.Request.Context(), history.Record{
				URL:        req.URL,
				MediaCount: result.Count(),
				Title:      result.Title,
			}); err != nil {
				slog.Warn("history record failed", "url", req.URL, "error", err)
			}
		}

		media := result.Media
		if media == nil {
			media = []models.MediaItem{}
		}
		c.JSON(http.StatusOK, models.ExtractResponse{
			Success:     true,
			Media:       media,
			Count:       len(media),
			ScrapedURL:  result.ScrapedURL,
			Title:       result.Title,
			CacheStatus: cacheStatus,
			Timing: models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			},
		})
	}
}
