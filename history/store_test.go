package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tick returns a clock that advances one second per call.
func tick() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type storeFactory func(t *testing.T, max int, ev Eviction) Store

func memoryFactory(t *testing.T, max int, ev Eviction) Store {
	s := NewMemoryStore(max, ev)
	s.now = tick()
	return s
}

func sqliteFactory(t *testing.T, max int, ev Eviction) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), max, ev)
	require.NoError(t, err)
	s.now = tick()
	t.Cleanup(func() { s.Close() })
	return s
}

var factories = map[string]storeFactory{
	"memory": memoryFactory,
	"sqlite": sqliteFactory,
}

func listURLs(t *testing.T, s Store) []string {
	t.Helper()
	entries, err := s.List(context.Background())
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.URL
	}
	return out
}

func TestStoreUpsertKeepsID(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, 10, EvictOldestInserted)

			first, err := s.Record(ctx, Record{URL: "https://a.test", MediaCount: 3, Title: "A"})
			require.NoError(t, err)
			_, err = s.Record(ctx, Record{URL: "https://b.test", MediaCount: 1})
			require.NoError(t, err)
			second, err := s.Record(ctx, Record{URL: "https://a.test", MediaCount: 7, Title: "A2"})
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.True(t, second.Timestamp.After(first.Timestamp))

			entries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "https://a.test", entries[0].URL)
			assert.Equal(t, 7, entries[0].MediaCount)
			assert.Equal(t, "A2", entries[0].Title)
			assert.Equal(t, "https://b.test", entries[1].URL)
		})
	}
}

func TestStoreEvictsOldestInserted(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, 3, EvictOldestInserted)

			for i := 1; i <= 3; i++ {
				_, err := s.Record(ctx, Record{URL: fmt.Sprintf("https://%d.test", i)})
				require.NoError(t, err)
			}
			// Touching 1 does not save it under oldest-inserted.
			_, err := s.Record(ctx, Record{URL: "https://1.test", MediaCount: 5})
			require.NoError(t, err)
			_, err = s.Record(ctx, Record{URL: "https://4.test"})
			require.NoError(t, err)

			assert.Equal(t, []string{"https://4.test", "https://3.test", "https://2.test"}, listURLs(t, s))
		})
	}
}

func TestStoreEvictsLeastRecentlyUpdated(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, 3, EvictLeastRecentlyUpdated)

			for i := 1; i <= 3; i++ {
				_, err := s.Record(ctx, Record{URL: fmt.Sprintf("https://%d.test", i)})
				require.NoError(t, err)
			}
			_, err := s.Record(ctx, Record{URL: "https://1.test", MediaCount: 5})
			require.NoError(t, err)
			_, err = s.Record(ctx, Record{URL: "https://4.test"})
			require.NoError(t, err)

			assert.Equal(t, []string{"https://4.test", "https://1.test", "https://3.test"}, listURLs(t, s))
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, 10, EvictOldestInserted)

			e, err := s.Record(ctx, Record{URL: "https://a.test"})
			require.NoError(t, err)

			require.NoError(t, s.Delete(ctx, e.ID))
			assert.ErrorIs(t, s.Delete(ctx, e.ID), ErrNotFound)
			assert.Empty(t, listURLs(t, s))
		})
	}
}

func TestStoreCapsAtDefault(t *testing.T) {
	ctx := context.Background()
	s := memoryFactory(t, 0, "")
	for i := 0; i < DefaultMaxEntries+5; i++ {
		_, err := s.Record(ctx, Record{URL: fmt.Sprintf("https://%d.test", i)})
		require.NoError(t, err)
	}
	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultMaxEntries)
	assert.Equal(t, fmt.Sprintf("https://%d.test", DefaultMaxEntries+4), entries[0].URL)
}

func TestParseEviction(t *testing.T) {
	ev, err := ParseEviction("")
	require.NoError(t, err)
	assert.Equal(t, EvictOldestInserted, ev)

	ev, err = ParseEviction("least-recently-updated")
	require.NoError(t, err)
	assert.Equal(t, EvictLeastRecentlyUpdated, ev)

	_, err = ParseEviction("random")
	assert.Error(t, err)
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
