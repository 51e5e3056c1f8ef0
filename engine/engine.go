package engine

import (
	"context"
	"io"
	"time"

	"github.com/use-agent/mediagrab/models"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http").
	Name() string

	// Fetch retrieves the whole response body for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)

	// Open starts the request and hands back the live body for streaming.
	// The caller must Close the returned Stream.
	Open(ctx context.Context, req *FetchRequest) (*Stream, error)
}

// FetchRequest contains everything an engine needs to fetch a resource.
type FetchRequest struct {
	URL     string
	Headers map[string]string

	// Accept overrides the default Accept header.
	Accept string

	// Timeout bounds the whole exchange including the body read.
	// Zero means no engine-imposed deadline.
	Timeout time.Duration

	// MaxBody caps how much of the body Fetch reads. Zero means 10 MB.
	MaxBody int64

	// Target picks the user-facing wording of errors.
	Target models.Target
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	Body        []byte
	StatusCode  int
	FinalURL    string
	ContentType string
	Truncated   bool
	EngineName  string
}

// Stream is an open 2xx response. Reading from it after the request
// timeout elapses returns an error.
type Stream struct {
	Body          io.ReadCloser
	StatusCode    int
	FinalURL      string
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// Close releases the connection and the request deadline.
func (s *Stream) Close() error {
	return s.Body.Close()
}
