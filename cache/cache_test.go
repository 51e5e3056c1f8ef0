package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/mediagrab/models"
)

func newTestCache(t *testing.T, max int) (*Cache, *time.Time) {
	t.Helper()
	c := New(max, time.Hour)
	t.Cleanup(c.Close)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func sample() *models.ExtractResult {
	return &models.ExtractResult{
		Media:      []models.MediaItem{{URL: "https://x.test/a.jpg", Type: models.MediaImage, Filename: "a.jpg"}},
		ScrapedURL: "https://x.test/",
	}
}

func TestGetHonorsMaxAge(t *testing.T) {
	c, now := newTestCache(t, 10)
	key := Key("https://x.test/")
	c.Set(key, sample())

	_, hit := c.Get(key, 0)
	assert.False(t, hit, "max age 0 disables lookup")

	*now = now.Add(500 * time.Millisecond)
	got, hit := c.Get(key, 1000)
	require.True(t, hit)
	assert.Equal(t, sample(), got)

	*now = now.Add(time.Second)
	_, hit = c.Get(key, 1000)
	assert.False(t, hit)
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	c, _ := newTestCache(t, 10)
	key := Key("https://x.test/")
	c.Set(key, sample())

	got, hit := c.Get(key, 1000)
	require.True(t, hit)
	got.Media[0].Selected = true

	again, _ := c.Get(key, 1000)
	assert.False(t, again.Media[0].Selected)
}

func TestSetEvictsOldestAtCapacity(t *testing.T) {
	c, now := newTestCache(t, 2)
	for i := 0; i < 3; i++ {
		c.Set(Key(fmt.Sprint(i)), sample())
		*now = now.Add(time.Second)
	}

	assert.Equal(t, 2, c.Len())
	_, hit := c.Get(Key("0"), 60_000)
	assert.False(t, hit)
	_, hit = c.Get(Key("2"), 60_000)
	assert.True(t, hit)
}

func TestExpireDropsStaleEntries(t *testing.T) {
	c, now := newTestCache(t, 10)
	c.Set(Key("a"), sample())
	*now = now.Add(2 * time.Hour)
	c.Set(Key("b"), sample())

	c.expire()

	assert.Equal(t, 1, c.Len())
}

func TestKeyIgnoresSurroundingSpace(t *testing.T) {
	assert.Equal(t, Key("https://x.test/"), Key("  https://x.test/ "))
	assert.NotEqual(t, Key("https://x.test/a"), Key("https://x.test/b"))
}
