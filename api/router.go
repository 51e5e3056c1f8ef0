package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/mediagrab/api/handler"
	"github.com/use-agent/mediagrab/api/middleware"
	"github.com/use-agent/mediagrab/cache"
	"github.com/use-agent/mediagrab/config"
	"github.com/use-agent/mediagrab/downloader"
	"github.com/use-agent/mediagrab/history"
)

// Deps are the services the router exposes. Cache may be nil.
type Deps struct {
	Config    *config.Config
	Extractor handler.MediaExtractor
	Opener    downloader.Opener
	Batches   *handler.BatchDeps
	History   history.Store
	Cache     *cache.Cache
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health sits outside auth so monitoring probes always work.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(d.Batches.Jobs, d.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Extraction
	protected.POST("/extract", handler.Extract(d.Extractor, d.Cache, d.History))

	// Single-file relay
	protected.POST("/download", handler.Download(d.Opener, handler.DownloadOptions{
		Timeout:  cfg.Fetch.ItemTimeout,
		MaxBytes: cfg.Fetch.MaxItemBytes,
	}))

	// Batches
	protected.POST("/batch", handler.PostBatch(d.Batches))
	protected.GET("/batch/:id", handler.GetBatch(d.Batches.Jobs))
	protected.GET("/batch/:id/events", handler.BatchEvents(d.Batches.Jobs))
	protected.GET("/batch/:id/files/:index", handler.BatchFile(d.Batches.Jobs))
	protected.POST("/batch/:id/retry", handler.RetryBatch(d.Batches))

	// History
	protected.GET("/history", handler.ListHistory(d.History))
	protected.POST("/history", handler.PostHistory(d.History))
	protected.DELETE("/history/:id", handler.DeleteHistory(d.History))

	return r
}
