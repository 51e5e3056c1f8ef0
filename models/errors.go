package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidURL   = "INVALID_URL"
	ErrCodeTimeout      = "FETCH_TIMEOUT"
	ErrCodeFetchFailed  = "FETCH_FAILED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Target tells which kind of upstream resource an error refers to, so the
// user-facing message can say "website" or "file".
type Target int

const (
	TargetPage Target = iota
	TargetFile
)

// ErrorDetail is the structured error carried by batch records and the MCP bridge.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// Status holds the upstream HTTP status for FETCH_FAILED, FORBIDDEN and NOT_FOUND.
type ScrapeError struct {
	Code    string
	Message string
	Status  int
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// NewUpstreamError classifies a non-2xx upstream status.
func NewUpstreamError(status int, target Target) *ScrapeError {
	code := ErrCodeFetchFailed
	switch status {
	case 403:
		code = ErrCodeForbidden
	case 404:
		code = ErrCodeNotFound
	}
	return &ScrapeError{
		Code:    code,
		Message: UserMessage(code, target),
		Status:  status,
		Err:     fmt.Errorf("upstream returned status %d", status),
	}
}

// AsScrapeError unwraps err into a *ScrapeError, wrapping anything else as
// INTERNAL_ERROR with the generic message for target.
func AsScrapeError(err error, target Target) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(ErrCodeInternal, UserMessage(ErrCodeInternal, target), err)
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

var pageMessages = map[string]string{
	ErrCodeInvalidURL:  "Invalid URL format",
	ErrCodeTimeout:     "Request timeout. The website took too long to respond.",
	ErrCodeForbidden:   "Access forbidden. The website blocked our request.",
	ErrCodeNotFound:    "Website not found. Please check the URL.",
	ErrCodeFetchFailed: "Failed to scrape website. Please try again later.",
	ErrCodeInternal:    "Failed to scrape website. Please try again later.",
}

var fileMessages = map[string]string{
	ErrCodeInvalidURL:  "Invalid URL format",
	ErrCodeTimeout:     "Download timeout. The file took too long to download.",
	ErrCodeForbidden:   "Access forbidden. Unable to download this file.",
	ErrCodeNotFound:    "File not found. The media file may no longer exist.",
	ErrCodeFetchFailed: "Failed to download file. Please try again later.",
	ErrCodeInternal:    "Failed to download file. Please try again later.",
}

// UserMessage returns the single human-readable message for an error code.
func UserMessage(code string, target Target) string {
	table := pageMessages
	if target == TargetFile {
		table = fileMessages
	}
	if msg, ok := table[code]; ok {
		return msg
	}
	return table[ErrCodeInternal]
}
