package downloader

import (
	"log/slog"
	"sync"
	"time"
)

// Jobs holds in-flight and finished batches for the API. Finished batches
// older than the TTL are dropped by a background sweep together with the
// payloads in their sinks.
type Jobs struct {
	store sync.Map // id -> job
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// NewJobs creates a registry and starts its expiry loop.
func NewJobs(ttl time.Duration) *Jobs {
	if ttl <= 0 {
		ttl = time.Hour
	}
	j := &Jobs{ttl: ttl, stop: make(chan struct{})}
	go j.cleanupLoop(5 * time.Minute)
	return j
}

type job struct {
	batch *Batch
	sink  Sink
}

// Add registers b together with the sink its payloads are written to.
func (j *Jobs) Add(b *Batch, sink Sink) { j.store.Store(b.ID, job{batch: b, sink: sink}) }

// Get returns the batch with the given id.
func (j *Jobs) Get(id string) (*Batch, bool) {
	v, ok := j.store.Load(id)
	if !ok {
		return nil, false
	}
	return v.(job).batch, true
}

// Sink returns the sink of the batch with the given id.
func (j *Jobs) Sink(id string) (Sink, bool) {
	v, ok := j.store.Load(id)
	if !ok {
		return nil, false
	}
	return v.(job).sink, true
}

// Active counts batches that have not finished.
func (j *Jobs) Active() int {
	n := 0
	j.store.Range(func(_, v any) bool {
		select {
		case <-v.(job).batch.Done():
		default:
			n++
		}
		return true
	})
	return n
}

// Close stops the expiry loop.
func (j *Jobs) Close() {
	j.once.Do(func() { close(j.stop) })
}

func (j *Jobs) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case now := <-ticker.C:
			j.expire(now)
		}
	}
}

func (j *Jobs) expire(now time.Time) {
	cutoff := now.Add(-j.ttl)
	j.store.Range(func(key, v any) bool {
		jb := v.(job)
		select {
		case <-jb.batch.Done():
			if !jb.batch.CreatedAt.Before(cutoff) {
				return true
			}
			j.store.Delete(key)
			if jb.sink != nil {
				if err := jb.sink.Remove(); err != nil {
					slog.Warn("failed to remove batch files", "id", jb.batch.ID, "error", err)
				}
			}
		default:
		}
		return true
	})
}
