package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/mediagrab/models"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// MemoryStore keeps history in a bounded ordered map keyed by URL. The map
// order is the eviction order: the oldest pair is evicted first.
type MemoryStore struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[string, models.HistoryEntry]
	max      int
	eviction Eviction
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most max entries.
func NewMemoryStore(max int, eviction Eviction) *MemoryStore {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if eviction == "" {
		eviction = EvictOldestInserted
	}
	return &MemoryStore{
		entries:  orderedmap.New[string, models.HistoryEntry](),
		max:      max,
		eviction: eviction,
		now:      time.Now,
	}
}

// Record upserts by URL. An existing entry keeps its ID.
func (s *MemoryStore) Record(_ context.Context, r Record) (models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.HistoryEntry{
		ID:         uuid.NewString(),
		URL:        r.URL,
		MediaCount: r.MediaCount,
		Title:      r.Title,
		Timestamp:  s.now(),
	}

	if prev, ok := s.entries.Get(r.URL); ok {
		entry.ID = prev.ID
		s.entries.Set(r.URL, entry)
		if s.eviction == EvictLeastRecentlyUpdated {
			_ = s.entries.MoveToBack(r.URL)
		}
		return entry, nil
	}

	for s.entries.Len() >= s.max {
		oldest := s.entries.Oldest()
		if oldest == nil {
			break
		}
		s.entries.Delete(oldest.Key)
	}
	s.entries.Set(r.URL, entry)
	return entry, nil
}

// List returns entries sorted by timestamp, newest first.
func (s *MemoryStore) List(_ context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	out := make([]models.HistoryEntry, 0, s.entries.Len())
	for pair := s.entries.Newest(); pair != nil; pair = pair.Prev() {
		out = append(out, pair.Value)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Delete removes the entry with the given ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.ID == id {
			s.entries.Delete(pair.Key)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Close() error { return nil }
