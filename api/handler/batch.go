package handler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/mediagrab/downloader"
	"github.com/use-agent/mediagrab/models"
	"github.com/use-agent/mediagrab/webhook"
)

// BatchDeps wires the batch endpoints.
type BatchDeps struct {
	Orchestrator *downloader.Orchestrator
	Jobs         *downloader.Jobs

	// Dir receives one subdirectory per batch.
	Dir string

	// Mode is used when a request does not name one.
	Mode downloader.Mode

	// Context bounds running batches; cancelling it stops them at the next
	// item boundary. Nil means context.Background().
	Context context.Context
}

func (d *BatchDeps) baseContext() context.Context {
	if d.Context != nil {
		return d.Context
	}
	return context.Background()
}

// start registers b with a fresh directory sink and runs it in the
// background. A webhook is sent when it finishes if url is set.
func (d *BatchDeps) start(b *downloader.Batch, hookURL, hookSecret string) error {
	sink, err := downloader.NewDirSink(filepath.Join(d.Dir, b.ID))
	if err != nil {
		return err
	}
	d.Jobs.Add(b, sink)

	go func() {
		d.Orchestrator.Run(d.baseContext(), b, sink)
		if hookURL != "" {
			webhook.DeliverAsync(hookURL, hookSecret,
				webhook.NewEvent(webhook.EventBatchCompleted, b.ID, b.StatusResponse()))
		}
	}()
	return nil
}

// PostBatch returns a handler for POST /api/v1/batch.
func PostBatch(d *BatchDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		if req.Mode == "" {
			req.Mode = string(d.Mode)
		}
		req.Defaults()
		mode, ok := downloader.ParseMode(req.Mode)
		if !ok {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "mode must be sequential or concurrent")
			return
		}

		b := downloader.NewBatch(req.Items, mode)
		if err := d.start(b, req.WebhookURL, req.WebhookSecret); err != nil {
			respondError(c, err, models.TargetFile)
			return
		}

		slog.Info("batch accepted", "id", b.ID, "mode", mode, "total", b.Len())
		c.JSON(http.StatusOK, models.BatchResponse{
			ID:     b.ID,
			Status: "processing",
			Total:  b.Len(),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(jobs *downloader.Jobs) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, ok := jobs.Get(c.Param("id"))
		if !ok {
			respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		}
		c.JSON(http.StatusOK, b.StatusResponse())
	}
}

// RetryBatch returns a handler for POST /api/v1/batch/:id/retry. The
// errored items of a finished batch are downloaded again as a new batch.
func RetryBatch(d *BatchDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		prev, ok := d.Jobs.Get(c.Param("id"))
		if !ok {
			respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		}
		select {
		case <-prev.Done():
		default:
			respondCode(c, http.StatusConflict, models.ErrCodeInvalidInput, "batch is still running")
			return
		}

		b := prev.Retry()
		if b == nil {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "batch has no failed items")
			return
		}
		if err := d.start(b, "", ""); err != nil {
			respondError(c, err, models.TargetFile)
			return
		}

		slog.Info("batch retry accepted", "id", b.ID, "from", prev.ID, "total", b.Len())
		c.JSON(http.StatusOK, models.BatchResponse{
			ID:     b.ID,
			Status: "processing",
			Total:  b.Len(),
		})
	}
}

// BatchEvents returns a handler for GET /api/v1/batch/:id/events.
//
// The stream sends a "record" event for every record as it changes (all
// records on connect) and a final "done" event carrying the batch status.
func BatchEvents(jobs *downloader.Jobs) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, ok := jobs.Get(c.Param("id"))
		if !ok {
			respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		}

		updates, stop := b.Watch()
		defer stop()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		var last []models.DownloadRecord
		emit := func() {
			snap := b.Snapshot()
			for i, r := range snap {
				if i >= len(last) || r != last[i] {
					c.SSEvent("record", r)
				}
			}
			last = snap
			c.Writer.Flush()
		}

		for {
			emit()
			select {
			case <-b.Done():
				emit()
				c.SSEvent("done", b.StatusResponse())
				c.Writer.Flush()
				return
			case <-updates:
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// BatchFile returns a handler for GET /api/v1/batch/:id/files/:index.
func BatchFile(jobs *downloader.Jobs) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		b, ok := jobs.Get(id)
		sink, _ := jobs.Sink(id)
		if !ok || sink == nil {
			respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		}

		idx, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "index must be an integer")
			return
		}
		rec, ok := b.Record(idx)
		if !ok || rec.Status != models.StatusCompleted {
			respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "file not available")
			return
		}

		f, err := sink.Open(rec.SavedAs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "file not available")
				return
			}
			respondError(c, err, models.TargetFile)
			return
		}
		defer f.Close()

		contentType := rec.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, rec.Bytes, contentType, f, map[string]string{
			"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}),
		})
	}
}
