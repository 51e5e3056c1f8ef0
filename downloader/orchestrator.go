// Package downloader runs batches of media downloads and tracks the state
// of every item as it moves from pending through downloading to completed
// or error.
package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/use-agent/mediagrab/engine"
	"github.com/use-agent/mediagrab/models"
	"golang.org/x/sync/semaphore"
)

const (
	defaultItemTimeout = 30 * time.Second
	fallbackType       = "application/octet-stream"
	sniffLen           = 3072
)

// Opener is the slice of engine.Engine the orchestrator needs.
type Opener interface {
	Open(ctx context.Context, req *engine.FetchRequest) (*engine.Stream, error)
}

// Options configures an Orchestrator.
type Options struct {
	// ItemTimeout bounds each item fetch including its body. Default: 30s.
	ItemTimeout time.Duration
	// Concurrency is the parallelism of Concurrent batches. Default: 4.
	Concurrency int
	// MaxItemBytes fails items whose body exceeds it. Zero means no limit.
	MaxItemBytes int64
}

// Orchestrator downloads the items of a batch. One item failing never
// stops the others.
type Orchestrator struct {
	opener Opener
	opts   Options
}

// New creates an Orchestrator fetching through o.
func New(o Opener, opts Options) *Orchestrator {
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Orchestrator{opener: o, opts: opts}
}

// Run processes b and returns when every started item has finished.
//
// Cancelling ctx stops the batch at the next item boundary; an item that
// is already downloading runs to completion or to its own timeout. Items
// never started stay pending.
func (o *Orchestrator) Run(ctx context.Context, b *Batch, sink Sink) Summary {
	defer b.finish()

	start := time.Now()
	switch b.Mode {
	case Concurrent:
		o.runConcurrent(ctx, b, sink)
	default:
		o.runSequential(ctx, b, sink)
	}

	s := b.Summary()
	slog.Info("batch finished",
		"id", b.ID,
		"mode", b.Mode,
		"completed", s.Completed,
		"failed", s.Failed,
		"pending", s.Pending,
		"total", s.Total,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	s.Finished = true
	return s
}

func (o *Orchestrator) runSequential(ctx context.Context, b *Batch, sink Sink) {
	for i := 0; i < b.Len(); i++ {
		if ctx.Err() != nil {
			slog.Info("batch cancelled", "id", b.ID, "remaining", b.Len()-i)
			return
		}
		o.runItem(ctx, b, i, sink)
	}
}

func (o *Orchestrator) runConcurrent(ctx context.Context, b *Batch, sink Sink) {
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	var wg sync.WaitGroup
	for i := 0; i < b.Len(); i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Info("batch cancelled", "id", b.ID, "remaining", b.Len()-i)
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)
			o.runItem(ctx, b, idx, sink)
		}(i)
	}
	wg.Wait()
}

func (o *Orchestrator) runItem(ctx context.Context, b *Batch, i int, sink Sink) {
	item := b.item(i)
	b.update(i, func(r *models.DownloadRecord) {
		r.Status = models.StatusDownloading
		r.Progress = 0
		r.Error = nil
	})

	// In-flight fetches ignore batch cancellation and rely on ItemTimeout.
	itemCtx := context.WithoutCancel(ctx)

	savedAs, n, contentType, err := o.fetch(itemCtx, b, i, item, sink)
	if err != nil {
		se := models.AsScrapeError(err, models.TargetFile)
		slog.Warn("download item failed",
			"batch", b.ID,
			"index", i,
			"url", item.URL,
			"code", se.Code,
			"error", err,
		)
		b.update(i, func(r *models.DownloadRecord) {
			r.Status = models.StatusError
			r.Bytes = n
			r.Error = se.ToDetail()
		})
		return
	}

	b.update(i, func(r *models.DownloadRecord) {
		r.Status = models.StatusCompleted
		r.Progress = 100
		r.Bytes = n
		r.ContentType = contentType
		r.SavedAs = savedAs
	})
}

func (o *Orchestrator) fetch(ctx context.Context, b *Batch, i int, item models.BatchItem, sink Sink) (string, int64, string, error) {
	stream, err := o.opener.Open(ctx, &engine.FetchRequest{
		URL:     item.URL,
		Accept:  "*/*",
		Timeout: o.opts.ItemTimeout,
		Target:  models.TargetFile,
	})
	if err != nil {
		return "", 0, "", err
	}
	defer stream.Close()

	body := bufio.NewReaderSize(stream.Body, sniffLen)
	contentType := stream.ContentType
	if contentType == "" {
		contentType = sniffContentType(body)
	}

	var src io.Reader = body
	if o.opts.MaxItemBytes > 0 {
		src = &limitedReader{r: src, remaining: o.opts.MaxItemBytes}
	}
	pr := &progressReader{r: src, total: stream.ContentLength, report: func(pct int, n int64) {
		b.update(i, func(r *models.DownloadRecord) {
			r.Progress = pct
			r.Bytes = n
		})
	}}

	savedAs, err := sink.Put(ctx, item.Filename, contentType, pr)
	if err != nil {
		return "", pr.n, contentType, err
	}
	return savedAs, pr.n, contentType, nil
}

// sniffContentType detects the type from the first bytes of the body,
// falling back to application/octet-stream.
func sniffContentType(r *bufio.Reader) string {
	head, _ := r.Peek(sniffLen)
	if len(head) == 0 {
		return fallbackType
	}
	if m := mimetype.Detect(head); m != nil {
		return m.String()
	}
	return fallbackType
}

// progressReader reports whole-percent progress, capped at 99 until the
// record completes. Without a known length it reports byte counts only.
type progressReader struct {
	r      io.Reader
	total  int64
	n      int64
	last   int
	report func(pct int, n int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.n += int64(n)
	if n > 0 && p.total > 0 {
		pct := int(p.n * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct != p.last {
			p.last = pct
			p.report(pct, p.n)
		}
	}
	return n, err
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(buf []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errTooLarge
	}
	if int64(len(buf)) > l.remaining+1 {
		buf = buf[:l.remaining+1]
	}
	n, err := l.r.Read(buf)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

var errTooLarge = models.NewScrapeError(
	models.ErrCodeFetchFailed,
	models.UserMessage(models.ErrCodeFetchFailed, models.TargetFile),
	fmt.Errorf("downloader: item exceeds size limit"),
)
