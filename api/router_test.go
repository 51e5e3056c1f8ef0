package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/mediagrab/api/handler"
	"github.com/use-agent/mediagrab/cache"
	"github.com/use-agent/mediagrab/config"
	"github.com/use-agent/mediagrab/downloader"
	"github.com/use-agent/mediagrab/engine"
	"github.com/use-agent/mediagrab/extractor"
	"github.com/use-agent/mediagrab/history"
	"github.com/use-agent/mediagrab/models"
	"github.com/use-agent/mediagrab/webhook"
)

const galleryHTML = `<html><head><title>Gallery</title></head><body>
<img src="pic.jpg" width="100" height="50">
<a href="clip.mp4">clip</a>
<img src="pic.jpg">
</body></html>`

type testEnv struct {
	router   *gin.Engine
	upstream *httptest.Server
	jobs     *downloader.Jobs
	history  history.Store
	pageHits atomic.Int32
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	env := &testEnv{}

	mux := http.NewServeMux()
	mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
		env.pageHits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, galleryHTML)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		io.WriteString(w, "data:"+r.URL.Path)
	})
	mux.HandleFunc("/chunked.bin", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "part1-")
		w.(http.Flusher).Flush()
		io.WriteString(w, "part2")
	})
	env.upstream = httptest.NewServer(mux)
	t.Cleanup(env.upstream.Close)

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Fetch:     config.FetchConfig{PageTimeout: 5 * time.Second, ItemTimeout: 5 * time.Second, MaxPageBytes: 1 << 20, MaxItemBytes: 1 << 20},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	if mutate != nil {
		mutate(cfg)
	}

	eng, err := engine.NewHTTPEngine(engine.HTTPOptions{})
	require.NoError(t, err)

	env.jobs = downloader.NewJobs(time.Hour)
	t.Cleanup(env.jobs.Close)
	cc := cache.New(10, time.Hour)
	t.Cleanup(cc.Close)
	env.history = history.NewMemoryStore(history.DefaultMaxEntries, history.EvictOldestInserted)

	env.router = NewRouter(Deps{
		Config:    cfg,
		Extractor: extractor.New(eng, extractor.Options{Timeout: cfg.Fetch.PageTimeout, MaxBody: cfg.Fetch.MaxPageBytes}),
		Opener:    eng,
		Batches: &handler.BatchDeps{
			Orchestrator: downloader.New(eng, downloader.Options{ItemTimeout: cfg.Fetch.ItemTimeout}),
			Jobs:         env.jobs,
			Dir:          t.TempDir(),
			Mode:         downloader.Sequential,
		},
		History:   env.history,
		Cache:     cc,
		StartTime: time.Now(),
	})
	return env
}

func (env *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (env *testEnv) waitBatch(t *testing.T, id string) *downloader.Batch {
	t.Helper()
	b, ok := env.jobs.Get(id)
	require.True(t, ok)
	select {
	case <-b.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("batch did not finish")
	}
	return b
}

func TestExtractEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	pageURL := env.upstream.URL + "/gallery"

	w := env.do(http.MethodPost, "/api/v1/extract", models.ExtractRequest{URL: pageURL})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.ExtractResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, pageURL, resp.ScrapedURL)
	require.Len(t, resp.Media, 2)
	assert.Equal(t, env.upstream.URL+"/pic.jpg", resp.Media[0].URL)
	assert.Equal(t, models.MediaImage, resp.Media[0].Type)
	assert.Equal(t, "100×50", resp.Media[0].Dimensions)
	assert.False(t, resp.Media[0].Selected)
	assert.Equal(t, "clip.mp4", resp.Media[1].Filename)
	assert.Equal(t, models.MediaVideo, resp.Media[1].Type)
	assert.Empty(t, resp.CacheStatus)

	entries, err := env.history.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, pageURL, entries[0].URL)
	assert.Equal(t, 2, entries[0].MediaCount)
}

func TestExtractErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		url    string
		status int
		code   string
		msg    string
	}{
		{"relative", "not a url", http.StatusBadRequest, models.ErrCodeInvalidURL, "Invalid URL format"},
		{"scheme", "ftp://example.com/", http.StatusBadRequest, models.ErrCodeInvalidURL, "Invalid URL format"},
		{"forbidden", env.upstream.URL + "/forbidden", http.StatusForbidden, models.ErrCodeForbidden,
			"Access forbidden. The website blocked our request."},
		{"missing", env.upstream.URL + "/nope", http.StatusNotFound, models.ErrCodeNotFound,
			"Website not found. Please check the URL."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/extract", models.ExtractRequest{URL: tt.url})
			assert.Equal(t, tt.status, w.Code)
			resp := decode[models.ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.msg, resp.Error)
		})
	}

	w := env.do(http.MethodPost, "/api/v1/extract", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractUsesCacheWithinMaxAge(t *testing.T) {
	env := newTestEnv(t, nil)
	req := models.ExtractRequest{URL: env.upstream.URL + "/gallery", MaxAge: 60_000}

	first := decode[models.ExtractResponse](t, env.do(http.MethodPost, "/api/v1/extract", req))
	second := decode[models.ExtractResponse](t, env.do(http.MethodPost, "/api/v1/extract", req))

	assert.Equal(t, "miss", first.CacheStatus)
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.Media, second.Media)
	assert.Equal(t, int32(1), env.pageHits.Load())
}

func TestDownloadRelaysFile(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/download", models.DownloadRequest{
		URL: env.upstream.URL + "/files/a.jpg", Filename: "my photo.jpg",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data:/files/a.jpg", w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="my photo.jpg"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, fmt.Sprint(len("data:/files/a.jpg")), w.Header().Get("Content-Length"))
}

func TestDownloadBuffersUnknownLength(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/download", models.DownloadRequest{
		URL: env.upstream.URL + "/chunked.bin", Filename: "c.bin",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "part1-part2", w.Body.String())
	assert.Equal(t, "11", w.Header().Get("Content-Length"))
	assert.Equal(t, "attachment; filename=c.bin", w.Header().Get("Content-Disposition"))
}

func TestDownloadErrors(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Fetch.MaxItemBytes = 4 })

	w := env.do(http.MethodPost, "/api/v1/download", models.DownloadRequest{URL: env.upstream.URL + "/files/a.jpg"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "URL and filename are required", decode[models.ErrorResponse](t, w).Error)

	w = env.do(http.MethodPost, "/api/v1/download", models.DownloadRequest{URL: "::", Filename: "a.jpg"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidURL, decode[models.ErrorResponse](t, w).Code)

	w = env.do(http.MethodPost, "/api/v1/download", models.DownloadRequest{URL: env.upstream.URL + "/gone.jpg", Filename: "a.jpg"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found. The media file may no longer exist.", decode[models.ErrorResponse](t, w).Error)

	w = env.do(http.MethodPost, "/api/v1/download", models.DownloadRequest{URL: env.upstream.URL + "/files/a.jpg", Filename: "a.jpg"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to download file. Please try again later.", decode[models.ErrorResponse](t, w).Error)
}

func TestBatchLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.upstream.URL

	w := env.do(http.MethodPost, "/api/v1/batch", models.BatchRequest{Items: []models.BatchItem{
		{URL: u + "/files/one.jpg"},
		{URL: u + "/missing.jpg"},
		{URL: u + "/files/three.jpg", Filename: "third.jpg"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[models.BatchResponse](t, w)
	assert.Equal(t, 3, accepted.Total)
	env.waitBatch(t, accepted.ID)

	status := decode[models.BatchStatusResponse](t, env.do(http.MethodGet, "/api/v1/batch/"+accepted.ID, nil))
	assert.Equal(t, "partial", status.Status)
	assert.Equal(t, "sequential", status.Mode)
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, 1, status.Failed)
	require.Len(t, status.Records, 3)
	assert.Equal(t, models.StatusCompleted, status.Records[0].Status)
	assert.Equal(t, 100, status.Records[0].Progress)
	assert.Equal(t, models.StatusError, status.Records[1].Status)
	assert.Equal(t, models.ErrCodeNotFound, status.Records[1].Error.Code)
	assert.NotEqual(t, 100, status.Records[1].Progress)
	assert.Equal(t, "third.jpg", status.Records[2].Filename)

	w = env.do(http.MethodGet, "/api/v1/batch/"+accepted.ID+"/files/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data:/files/three.jpg", w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/batch/"+accepted.ID+"/files/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/batch/nope", nil).Code)

	w = env.do(http.MethodPost, "/api/v1/batch/"+accepted.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	retry := decode[models.BatchResponse](t, w)
	assert.NotEqual(t, accepted.ID, retry.ID)
	assert.Equal(t, 1, retry.Total)
	b := env.waitBatch(t, retry.ID)
	assert.Equal(t, "failed", b.Summary().Status())
}

func TestBatchEventsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.upstream.URL

	accepted := decode[models.BatchResponse](t, env.do(http.MethodPost, "/api/v1/batch", models.BatchRequest{
		Items: []models.BatchItem{{URL: u + "/files/a.jpg"}, {URL: u + "/files/b.jpg"}},
		Mode:  "concurrent",
	}))
	env.waitBatch(t, accepted.ID)

	w := env.do(http.MethodGet, "/api/v1/batch/"+accepted.ID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event:record"))
	assert.Equal(t, 1, strings.Count(body, "event:done"))
	assert.Contains(t, body, `"status":"completed"`)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
}

func TestBatchRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/batch", models.BatchRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/batch", models.BatchRequest{
		Items: []models.BatchItem{{URL: "https://x.test/a.jpg"}},
		Mode:  "parallel",
	}).Code)
}

func TestBatchWebhook(t *testing.T) {
	type delivery struct {
		sig  string
		body []byte
	}
	got := make(chan delivery, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{sig: r.Header.Get(webhook.SignatureHeader), body: body}
	}))
	defer hook.Close()

	env := newTestEnv(t, nil)
	accepted := decode[models.BatchResponse](t, env.do(http.MethodPost, "/api/v1/batch", models.BatchRequest{
		Items:         []models.BatchItem{{URL: env.upstream.URL + "/files/a.jpg"}},
		WebhookURL:    hook.URL,
		WebhookSecret: "s3cret",
	}))

	select {
	case d := <-got:
		assert.Equal(t, "sha256="+webhook.Sign("s3cret", d.body), d.sig)
		var ev webhook.Event
		require.NoError(t, json.Unmarshal(d.body, &ev))
		assert.Equal(t, webhook.EventBatchCompleted, ev.Type)
		assert.Equal(t, accepted.ID, ev.JobID)
	case <-time.After(10 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	count := func(n int) *int { return &n }

	w := env.do(http.MethodPost, "/api/v1/history", models.HistoryRequest{URL: "https://a.test", MediaCount: count(0)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[models.HistoryEntryResponse](t, w).History

	env.do(http.MethodPost, "/api/v1/history", models.HistoryRequest{URL: "https://b.test", MediaCount: count(2)})
	w = env.do(http.MethodPost, "/api/v1/history", models.HistoryRequest{URL: "https://a.test", MediaCount: count(5), Title: "A"})
	assert.Equal(t, first.ID, decode[models.HistoryEntryResponse](t, w).History.ID)

	list := decode[models.HistoryListResponse](t, env.do(http.MethodGet, "/api/v1/history", nil))
	assert.Equal(t, 2, list.Count)
	require.Len(t, list.History, 2)
	assert.Equal(t, "https://a.test", list.History[0].URL)
	assert.Equal(t, 5, list.History[0].MediaCount)

	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/v1/history/"+first.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/v1/history/"+first.ID, nil).Code)

	w = env.do(http.MethodPost, "/api/v1/history", map[string]string{"url": "https://c.test"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "URL and mediaCount are required", decode[models.ErrorResponse](t, w).Error)
}

func TestHealthBypassesAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k"}}
	})

	w := env.do(http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, handler.Version, health.Version)

	w = env.do(http.MethodGet, "/api/v1/history", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
