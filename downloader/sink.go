package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sink receives the payload of each item that downloads successfully.
type Sink interface {
	// Put consumes r fully and stores it under a name derived from name.
	// It returns where the payload ended up. If r fails, nothing is kept.
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)

	// Open returns a stored payload by the location Put returned.
	Open(location string) (io.ReadCloser, error)

	// Remove discards every stored payload.
	Remove() error
}

// DirSink writes payloads into a directory. Name clashes get a numeric
// suffix: "a.jpg", "a (1).jpg", "a (2).jpg".
type DirSink struct {
	dir string
	mu  sync.Mutex
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("downloader: create sink dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Dir returns the directory payloads are written to.
func (s *DirSink) Dir() string { return s.dir }

func (s *DirSink) Put(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".part-*")
	if err != nil {
		return "", fmt.Errorf("downloader: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("downloader: close temp file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	final, err := s.reserve(name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(final)
		return "", fmt.Errorf("downloader: move payload: %w", err)
	}
	return final, nil
}

// reserve claims a free file name by creating it exclusively.
func (s *DirSink) reserve(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < 10000; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		path := filepath.Join(s.dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("downloader: reserve %q: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("downloader: no free name for %q", name)
}

// Open only serves files inside the sink directory.
func (s *DirSink) Open(location string) (io.ReadCloser, error) {
	rel, err := filepath.Rel(s.dir, location)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return nil, fs.ErrNotExist
	}
	return os.Open(location)
}

// Remove deletes the sink directory and everything in it.
func (s *DirSink) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("downloader: remove sink dir: %w", err)
	}
	return nil
}

// MemorySink keeps payloads in memory, keyed by unique name.
type MemorySink struct {
	mu    sync.RWMutex
	files map[string][]byte
	types map[string]string
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[string][]byte), types: make(map[string]string)}
}

func (s *MemorySink) Put(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := name
	ext := filepath.Ext(name)
	for n := 1; ; n++ {
		if _, taken := s.files[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	}
	s.files[key] = buf.Bytes()
	s.types[key] = contentType
	return key, nil
}

func (s *MemorySink) Open(location string) (io.ReadCloser, error) {
	data, ok := s.Bytes(location)
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Bytes returns a stored payload.
func (s *MemorySink) Bytes(location string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[location]
	return data, ok
}

// ContentType returns the content type recorded for a payload.
func (s *MemorySink) ContentType(location string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[location]
}

func (s *MemorySink) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.files)
	clear(s.types)
	return nil
}

// Len returns the number of stored payloads.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
