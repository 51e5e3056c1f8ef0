package downloader

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/mediagrab/media"
	"github.com/use-agent/mediagrab/models"
)

// Mode selects how a batch is scheduled.
type Mode string

const (
	// Sequential processes items one at a time in input order. Status
	// updates are observed in a deterministic order.
	Sequential Mode = "sequential"
	// Concurrent processes up to Options.Concurrency items at once.
	Concurrent Mode = "concurrent"
)

// ParseMode maps "", "sequential" and "concurrent" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", Sequential:
		return Sequential, true
	case Concurrent:
		return Concurrent, true
	}
	return "", false
}

// Batch is one download run over a fixed list of items. Records are
// created pending and only ever mutated by the orchestrator running it.
type Batch struct {
	ID        string
	Mode      Mode
	CreatedAt time.Time

	items []models.BatchItem

	mu        sync.RWMutex
	records   []models.DownloadRecord
	observers []func(models.DownloadRecord)
	watchers  map[int]chan struct{}
	nextWatch int
	finished  bool
	done      chan struct{}
}

// NewBatch materializes a pending record for every item. Items without a
// filename get one derived from their URL.
func NewBatch(items []models.BatchItem, mode Mode) *Batch {
	b := &Batch{
		ID:        uuid.NewString(),
		Mode:      mode,
		CreatedAt: time.Now(),
		items:     make([]models.BatchItem, len(items)),
		records:   make([]models.DownloadRecord, len(items)),
		watchers:  make(map[int]chan struct{}),
		done:      make(chan struct{}),
	}
	for i, it := range items {
		if it.Type == models.MediaNone {
			it.Type = media.Classify(it.URL)
		}
		name := media.SanitizeFilename(it.Filename)
		if name == "" {
			name = media.DeriveFilename(it.URL, it.Type)
		}
		it.Filename = name
		b.items[i] = it
		b.records[i] = models.DownloadRecord{
			Index:    i,
			Filename: name,
			URL:      it.URL,
			Status:   models.StatusPending,
		}
	}
	return b
}

// FromMedia builds batch items from the selected candidates in list.
func FromMedia(list []models.MediaItem) []models.BatchItem {
	items := make([]models.BatchItem, 0, len(list))
	for _, m := range list {
		if !m.Selected {
			continue
		}
		items = append(items, models.BatchItem{URL: m.URL, Filename: m.Filename, Type: m.Type})
	}
	return items
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int { return len(b.records) }

// Observe registers fn to be called after every record change, including
// progress updates while an item is still downloading. Calls are made
// outside the batch lock, in the order changes happen for a sequential
// batch. Register observers before the batch runs.
func (b *Batch) Observe(fn func(models.DownloadRecord)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Watch returns a channel that receives a signal whenever records change.
// Signals coalesce: a slow reader sees at least one signal after the last
// change. The cancel func must be called when done.
func (b *Batch) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	id := b.nextWatch
	b.nextWatch++
	b.watchers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.watchers, id)
		b.mu.Unlock()
	}
}

// Done is closed once the orchestrator has finished with the batch.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Snapshot returns a copy of every record.
func (b *Batch) Snapshot() []models.DownloadRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.DownloadRecord, len(b.records))
	copy(out, b.records)
	return out
}

// Record returns a copy of record i.
func (b *Batch) Record(i int) (models.DownloadRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.records) {
		return models.DownloadRecord{}, false
	}
	return b.records[i], true
}

// Summary counts records by state.
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Pending   int
	Finished  bool
}

// Status is "processing" until the batch ends, then "completed",
// "partial" or "failed".
func (s Summary) Status() string {
	switch {
	case !s.Finished:
		return "processing"
	case s.Completed == s.Total:
		return "completed"
	case s.Completed == 0:
		return "failed"
	default:
		return "partial"
	}
}

// Summary returns the current counts.
func (b *Batch) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Summary{Total: len(b.records), Finished: b.finished}
	for _, r := range b.records {
		switch r.Status {
		case models.StatusCompleted:
			s.Completed++
		case models.StatusError:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// StatusResponse renders the batch for the API.
func (b *Batch) StatusResponse() models.BatchStatusResponse {
	s := b.Summary()
	return models.BatchStatusResponse{
		ID:        b.ID,
		Status:    s.Status(),
		Mode:      string(b.Mode),
		Completed: s.Completed,
		Failed:    s.Failed,
		Total:     s.Total,
		Records:   b.Snapshot(),
	}
}

// Retry returns a fresh batch holding the items that ended in error.
// It returns nil when nothing failed.
func (b *Batch) Retry() *Batch {
	b.mu.RLock()
	var failed []models.BatchItem
	for i, r := range b.records {
		if r.Status == models.StatusError {
			failed = append(failed, b.items[i])
		}
	}
	b.mu.RUnlock()
	if len(failed) == 0 {
		return nil
	}
	return NewBatch(failed, b.Mode)
}

func (b *Batch) item(i int) models.BatchItem { return b.items[i] }

// update applies fn to record i and notifies observers and watchers.
func (b *Batch) update(i int, fn func(r *models.DownloadRecord)) {
	b.mu.Lock()
	fn(&b.records[i])
	rec := b.records[i]
	observers := b.observers
	for _, ch := range b.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()

	for _, fn := range observers {
		fn(rec)
	}
}

func (b *Batch) finish() {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return
	}
	b.finished = true
	close(b.done)
	for _, ch := range b.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}
