package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/mediagrab/api"
	"github.com/use-agent/mediagrab/api/handler"
	"github.com/use-agent/mediagrab/cache"
	"github.com/use-agent/mediagrab/config"
	"github.com/use-agent/mediagrab/downloader"
	"github.com/use-agent/mediagrab/engine"
	"github.com/use-agent/mediagrab/extractor"
	"github.com/use-agent/mediagrab/history"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load(os.Getenv("MEDIAGRAB_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("mediagrab starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"history", cfg.History.Backend,
		"downloadDir", cfg.Download.Dir,
	)

	// ── 3. Fetch engine ─────────────────────────────────────────────
	eng, err := engine.NewHTTPEngine(engine.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Proxy:     cfg.Fetch.Proxy,
	})
	if err != nil {
		slog.Error("failed to initialise fetch engine", "error", err)
		os.Exit(1)
	}

	// ── 4. Stores ───────────────────────────────────────────────────
	hist, err := openHistory(cfg.History)
	if err != nil {
		slog.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer hist.Close()

	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	jobs := downloader.NewJobs(cfg.Download.JobTTL)
	defer jobs.Close()

	mode, _ := downloader.ParseMode(cfg.Download.Mode)
	batchCtx, stopBatches := context.WithCancel(context.Background())
	defer stopBatches()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Config: cfg,
		Extractor: extractor.New(eng, extractor.Options{
			Timeout: cfg.Fetch.PageTimeout,
			MaxBody: cfg.Fetch.MaxPageBytes,
		}),
		Opener: eng,
		Batches: &handler.BatchDeps{
			Orchestrator: downloader.New(eng, downloader.Options{
				ItemTimeout:  cfg.Fetch.ItemTimeout,
				Concurrency:  cfg.Download.Concurrency,
				MaxItemBytes: cfg.Fetch.MaxItemBytes,
			}),
			Jobs:    jobs,
			Dir:     cfg.Download.Dir,
			Mode:    mode,
			Context: batchCtx,
		},
		History:   hist,
		Cache:     cc,
		StartTime: time.Now(),
	})

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Running batches stop at their next item boundary.
	stopBatches()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("mediagrab stopped")
}

// openHistory builds the configured history backend.
func openHistory(cfg config.HistoryConfig) (history.Store, error) {
	eviction, err := history.ParseEviction(cfg.Eviction)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "sqlite":
		return history.NewSQLiteStore(cfg.DatabasePath, cfg.MaxEntries, eviction)
	default:
		return history.NewMemoryStore(cfg.MaxEntries, eviction), nil
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
