package models

// DownloadStatus is the lifecycle state of one item in a batch.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusError       DownloadStatus = "error"
)

// Terminal reports whether no further transition is expected.
func (s DownloadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// DownloadRecord tracks one item of a batch.
type DownloadRecord struct {
	Index       int            `json:"index"`
	Filename    string         `json:"filename"`
	URL         string         `json:"url"`
	Status      DownloadStatus `json:"status"`
	Progress    int            `json:"progress"`
	Bytes       int64          `json:"bytes,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	SavedAs     string         `json:"saved_as,omitempty"`
	Error       *ErrorDetail   `json:"error,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"` // "processing", "completed", "partial", "failed"
	Mode      string           `json:"mode"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
	Records   []DownloadRecord `json:"records"`
}
