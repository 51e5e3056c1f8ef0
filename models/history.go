package models

import "time"

// HistoryEntry records one completed extraction.
type HistoryEntry struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	URL        string    `json:"url" gorm:"uniqueIndex;not null"`
	MediaCount int       `json:"mediaCount"`
	Title      string    `json:"title,omitempty"`
	Timestamp  time.Time `json:"timestamp" gorm:"index"`
}

// HistoryListResponse is the response for GET /api/v1/history.
type HistoryListResponse struct {
	Success bool           `json:"success"`
	History []HistoryEntry `json:"history"`
	Count   int            `json:"count"`
}

// HistoryEntryResponse is the response for POST /api/v1/history.
type HistoryEntryResponse struct {
	Success bool         `json:"success"`
	History HistoryEntry `json:"history"`
}

// MessageResponse acknowledges an operation without a payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
