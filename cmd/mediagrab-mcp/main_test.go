package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/mediagrab/models"
)

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/extract", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		var req models.ExtractRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.URL == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Invalid URL format", Code: models.ErrCodeInvalidURL})
			return
		}
		json.NewEncoder(w).Encode(models.ExtractResponse{
			Success:    true,
			ScrapedURL: req.URL,
			Title:      "Gallery",
			Count:      2,
			Media: []models.MediaItem{
				{URL: "https://x.test/pic.jpg", Type: models.MediaImage, Filename: "pic.jpg", Dimensions: "100×50"},
				{URL: "https://x.test/clip.mp4", Type: models.MediaVideo, Filename: "clip.mp4"},
			},
		})
	})
	mux.HandleFunc("/api/v1/batch", func(w http.ResponseWriter, r *http.Request) {
		var req models.BatchRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Len(t, req.Items, 2)
		json.NewEncoder(w).Encode(models.BatchResponse{ID: "b1", Status: "processing", Total: 2})
	})
	mux.HandleFunc("/api/v1/batch/b1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "processing"
		if polls > 1 {
			status = "partial"
		}
		json.NewEncoder(w).Encode(models.BatchStatusResponse{
			ID: "b1", Status: status, Completed: 1, Failed: 1, Total: 2,
			Records: []models.DownloadRecord{
				{Index: 0, Filename: "a.jpg", Status: models.StatusCompleted, Bytes: 2048, ContentType: "image/jpeg"},
				{Index: 1, Filename: "b.jpg", Status: models.StatusError,
					Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "File not found. The media file may no longer exist."}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractMediaTool(t *testing.T) {
	srv := fakeAPI(t)
	h := handleExtractMedia(srv.URL, "k")

	text, isErr := callTool(t, h, map[string]any{"url": "https://x.test/"})
	assert.False(t, isErr)
	assert.Contains(t, text, "Title: Gallery")
	assert.Contains(t, text, "1. [image] pic.jpg")
	assert.Contains(t, text, "(100×50)")
	assert.Contains(t, text, "2. [video] clip.mp4")

	text, _ = callTool(t, h, map[string]any{"url": "https://x.test/", "type": "video"})
	assert.Contains(t, text, "1. [video] clip.mp4")
	assert.NotContains(t, text, "pic.jpg")

	text, isErr = callTool(t, h, map[string]any{"url": "bad"})
	assert.True(t, isErr)
	assert.Equal(t, "[INVALID_URL] Invalid URL format", text)

	_, isErr = callTool(t, h, map[string]any{})
	assert.True(t, isErr)
}

func TestDownloadMediaTool(t *testing.T) {
	pollInterval = 10 * time.Millisecond
	srv := fakeAPI(t)
	h := handleDownloadMedia(srv.URL, "k")

	text, isErr := callTool(t, h, map[string]any{"urls": []any{"https://x.test/a.jpg", "https://x.test/b.jpg"}})
	assert.False(t, isErr)
	assert.Contains(t, text, "Batch b1: partial (1/2 completed, 1 failed)")
	assert.Contains(t, text, "✓ a.jpg (2.0 kB, image/jpeg)")
	assert.Contains(t, text, srv.URL+"/api/v1/batch/b1/files/0")
	assert.Contains(t, text, "✗ b.jpg: File not found.")

	_, isErr = callTool(t, h, map[string]any{"urls": []any{}})
	assert.True(t, isErr)
}
