package models

// ExtractRequest is the payload for POST /api/v1/extract.
type ExtractRequest struct {
	// URL is the page to scan for media. Required.
	// Validation happens in the extractor so a malformed URL maps to INVALID_URL.
	URL string `json:"url"`

	// MaxAge enables the result cache. A cached result younger than MaxAge
	// milliseconds is returned without fetching the page again.
	// Default: 0 (no caching).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// DownloadRequest is the payload for POST /api/v1/download.
type DownloadRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// BatchItem is one selected candidate submitted for batch download.
type BatchItem struct {
	URL      string    `json:"url" binding:"required"`
	Filename string    `json:"filename,omitempty"`
	Type     MediaType `json:"type,omitempty"`
}

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// Items are downloaded in the order given. Required.
	Items []BatchItem `json:"items" binding:"required,min=1,max=500,dive"`

	// Mode is "sequential" (default) or "concurrent".
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=sequential concurrent"`

	// WebhookURL receives a signed batch.completed event when the batch ends.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *BatchRequest) Defaults() {
	if r.Mode == "" {
		r.Mode = "sequential"
	}
}

// HistoryRequest is the payload for POST /api/v1/history.
type HistoryRequest struct {
	URL        string `json:"url" binding:"required"`
	MediaCount *int   `json:"mediaCount" binding:"required,min=0"`
	Title      string `json:"title,omitempty"`
}
