package handler

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/mediagrab/downloader"
	"github.com/use-agent/mediagrab/engine"
	"github.com/use-agent/mediagrab/media"
	"github.com/use-agent/mediagrab/models"
)

// DownloadOptions bounds single-file downloads.
type DownloadOptions struct {
	Timeout  time.Duration
	MaxBytes int64 // 0 disables the cap
}

// Download returns a handler for POST /api/v1/download. The upstream body
// is relayed as an attachment named after the requested filename.
func Download(o downloader.Opener, opts DownloadOptions) gin.HandlerFunc {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return func(c *gin.Context) {
		var req models.DownloadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Invalid request body")
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		filename := media.SanitizeFilename(req.Filename)
		if req.URL == "" || filename == "" {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "URL and filename are required")
			return
		}
		if _, ok := media.ParsePageURL(req.URL); !ok {
			respondCode(c, http.StatusBadRequest, models.ErrCodeInvalidURL,
				models.UserMessage(models.ErrCodeInvalidURL, models.TargetFile))
			return
		}

		stream, err := o.Open(c.Request.Context(), &engine.FetchRequest{
			URL:     req.URL,
			Accept:  "*/*",
			Timeout: opts.Timeout,
			Target:  models.TargetFile,
		})
		if err != nil {
			respondError(c, err, models.TargetFile)
			return
		}
		defer stream.Close()

		if opts.MaxBytes > 0 && stream.ContentLength > opts.MaxBytes {
			respondError(c, errFileTooLarge, models.TargetFile)
			return
		}

		body := io.Reader(stream.Body)
		length := stream.ContentLength
		if length < 0 {
			// Unknown length: buffer so the response carries Content-Length.
			data, err := readCapped(stream.Body, opts.MaxBytes)
			if err != nil {
				respondError(c, err, models.TargetFile)
				return
			}
			body, length = bytes.NewReader(data), int64(len(data))
		}

		contentType := stream.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, length, contentType, body, map[string]string{
			"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
		})
		if err := c.Errors.Last(); err != nil {
			slog.Warn("download relay interrupted", "url", req.URL, "error", err)
		}
	}
}

var errFileTooLarge = models.NewScrapeError(
	models.ErrCodeFetchFailed,
	models.UserMessage(models.ErrCodeFetchFailed, models.TargetFile),
	nil,
)

func readCapped(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errFileTooLarge
	}
	return data, nil
}
