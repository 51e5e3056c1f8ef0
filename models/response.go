package models

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	Success    bool        `json:"success"`
	Media      []MediaItem `json:"media"`
	Count      int         `json:"count"`
	ScrapedURL string      `json:"scrapedUrl"`
	Title      string      `json:"title,omitempty"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo `json:"timing"`
}

// ErrorResponse is the failure body shared by every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	ActiveBatches int    `json:"active_batches"`
	Version       string `json:"version"`
}
