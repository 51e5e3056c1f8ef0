package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/mediagrab/models"
)

// pollInterval is how often batch status is checked.
var pollInterval = 2 * time.Second

func main() {
	apiURL := os.Getenv("MEDIAGRAB_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("MEDIAGRAB_API_KEY")

	s := server.NewMCPServer(
		"mediagrab",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_media",
		mcp.WithDescription("List the images, videos and audio files referenced by a web page. Only the initial HTML is inspected; scripts are not executed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scan"),
		),
		mcp.WithString("type",
			mcp.Description("Only list media of this type"),
			mcp.Enum("image", "video", "audio"),
		),
	)
	s.AddTool(extractTool, handleExtractMedia(apiURL, apiKey))

	downloadTool := mcp.NewTool("download_media",
		mcp.WithDescription("Download media files on the server as one batch and report the outcome of every file. A failed file never stops the others."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Absolute URLs of the files to download, in order"),
		),
		mcp.WithString("mode",
			mcp.Description("'sequential' (default) downloads one file at a time; 'concurrent' downloads several at once"),
			mcp.Enum("sequential", "concurrent"),
		),
	)
	s.AddTool(downloadTool, handleDownloadMedia(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newRequest(ctx context.Context, method, url, apiKey string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req, nil
}

// apiPost sends a POST request to the mediagrab API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := newRequest(ctx, http.MethodPost, apiURL+path, apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := newRequest(ctx, http.MethodGet, apiURL+endpoint, apiKey, nil)
			if err != nil {
				return nil, err
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

// apiError renders a failed API response.
func apiError(body []byte, fallback string) string {
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Error)
	}
	return fallback
}

func handleExtractMedia(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		filter, _ := models.ParseMediaType(request.GetString("type", ""))

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/extract", models.ExtractRequest{URL: url})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.ExtractResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(apiError(respBody, "extraction failed")), nil
		}

		return mcp.NewToolResultText(formatMedia(&resp, filter)), nil
	}
}

func formatMedia(resp *models.ExtractResponse, filter models.MediaType) string {
	var sb strings.Builder
	if resp.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", resp.Title)
	}
	fmt.Fprintf(&sb, "Source: %s\n\n", resp.ScrapedURL)

	n := 0
	for _, m := range resp.Media {
		if filter != models.MediaNone && m.Type != filter {
			continue
		}
		n++
		fmt.Fprintf(&sb, "%d. [%s] %s\n   %s", n, m.Type, m.Filename, m.URL)
		if m.Dimensions != "" {
			fmt.Fprintf(&sb, " (%s)", m.Dimensions)
		}
		sb.WriteString("\n")
	}
	if n == 0 {
		sb.WriteString("No media found.\n")
	}
	return sb.String()
}

func handleDownloadMedia(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be a non-empty array of strings"), nil
		}

		items := make([]models.BatchItem, len(urls))
		for i, u := range urls {
			items[i] = models.BatchItem{URL: u}
		}
		payload := models.BatchRequest{Items: items, Mode: request.GetString("mode", "")}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/batch", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batchResp models.BatchResponse
		if err := json.Unmarshal(respBody, &batchResp); err != nil || batchResp.ID == "" {
			return mcp.NewToolResultError(apiError(respBody, "batch job creation failed")), nil
		}

		resultBody, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/batch/"+batchResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var status models.BatchStatusResponse
		if err := json.Unmarshal(resultBody, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch status: %v", err)), nil
		}

		return mcp.NewToolResultText(formatBatch(&status, apiURL)), nil
	}
}

func formatBatch(s *models.BatchStatusResponse, apiURL string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed, %d failed)\n\n", s.ID, s.Status, s.Completed, s.Total, s.Failed)
	for _, r := range s.Records {
		switch r.Status {
		case models.StatusCompleted:
			fmt.Fprintf(&sb, "✓ %s (%s, %s)\n   %s/api/v1/batch/%s/files/%d\n",
				r.Filename, humanize.Bytes(uint64(r.Bytes)), r.ContentType, apiURL, s.ID, r.Index)
		case models.StatusError:
			msg := "download failed"
			if r.Error != nil {
				msg = r.Error.Message
			}
			fmt.Fprintf(&sb, "✗ %s: %s\n", r.Filename, msg)
		default:
			fmt.Fprintf(&sb, "- %s: %s\n", r.Filename, r.Status)
		}
	}
	return sb.String()
}
