// Package history records past extractions: one entry per page URL,
// most recent first, with a bounded number of entries.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/mediagrab/models"
)

// DefaultMaxEntries is the default retention cap.
const DefaultMaxEntries = 100

// ErrNotFound is returned when deleting an unknown entry.
var ErrNotFound = errors.New("history: entry not found")

// Eviction picks which entry is dropped when the store is full.
type Eviction string

const (
	// EvictOldestInserted drops the entry first recorded longest ago.
	// Updating an entry does not change its position.
	EvictOldestInserted Eviction = "oldest-inserted"
	// EvictLeastRecentlyUpdated drops the entry touched longest ago.
	EvictLeastRecentlyUpdated Eviction = "least-recently-updated"
)

// ParseEviction maps a config string to an Eviction.
func ParseEviction(s string) (Eviction, error) {
	switch Eviction(s) {
	case "", EvictOldestInserted:
		return EvictOldestInserted, nil
	case EvictLeastRecentlyUpdated:
		return EvictLeastRecentlyUpdated, nil
	}
	return "", fmt.Errorf("history: unknown eviction policy %q", s)
}

// Record is the input for Store.Record.
type Record struct {
	URL        string
	MediaCount int
	Title      string
}

// Store is the history collaborator used by the API.
type Store interface {
	// Record upserts an entry keyed by URL, evicting per policy when full.
	Record(ctx context.Context, r Record) (models.HistoryEntry, error)
	// List returns entries newest first.
	List(ctx context.Context) ([]models.HistoryEntry, error)
	// Delete removes an entry by ID or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	Close() error
}
