// Package extractor fetches a page and turns every media reference in its
// markup into an ordered, deduplicated list of download candidates.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/mediagrab/engine"
	"github.com/use-agent/mediagrab/media"
	"github.com/use-agent/mediagrab/models"
)

// Fetcher is the slice of engine.Engine the extractor needs.
type Fetcher interface {
	Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
}

const defaultPageTimeout = 10 * time.Second

// Options configures an Extractor.
type Options struct {
	// Timeout bounds the page fetch. Default: 10s.
	Timeout time.Duration
	// MaxBody caps how much of the page is parsed. Default: 10 MB.
	MaxBody int64
}

// Extractor is stateless apart from its configuration and is safe for
// concurrent use.
type Extractor struct {
	fetcher Fetcher
	opts    Options
}

// New creates an Extractor that fetches pages through f.
func New(f Fetcher, opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPageTimeout
	}
	return &Extractor{fetcher: f, opts: opts}
}

// Extract fetches pageURL once and returns its media candidates.
//
// Errors are *models.ScrapeError with code INVALID_URL (no request made),
// FETCH_TIMEOUT, FORBIDDEN, NOT_FOUND or FETCH_FAILED. A page that cannot
// be parsed is not an error; it produces an empty result.
func (x *Extractor) Extract(ctx context.Context, pageURL string) (*models.ExtractResult, error) {
	base, ok := media.ParsePageURL(pageURL)
	if !ok {
		return nil, &models.ScrapeError{
			Code:    models.ErrCodeInvalidURL,
			Message: models.UserMessage(models.ErrCodeInvalidURL, models.TargetPage),
			Err:     fmt.Errorf("extractor: %q is not an absolute http(s) URL", pageURL),
		}
	}

	start := time.Now()
	res, err := x.fetcher.Fetch(ctx, &engine.FetchRequest{
		URL:     base.String(),
		Timeout: x.opts.Timeout,
		MaxBody: x.opts.MaxBody,
		Target:  models.TargetPage,
	})
	if err != nil {
		slog.Warn("extractor: page fetch failed", "url", pageURL, "error", err)
		return nil, models.AsScrapeError(err, models.TargetPage)
	}
	if res.Truncated {
		slog.Warn("extractor: page body truncated", "url", pageURL, "bytes", len(res.Body))
	}

	items := FromHTML(res.Body, base)
	title := pageTitle(res.Body, base)

	slog.Debug("extractor: page scanned",
		"url", pageURL,
		"final_url", res.FinalURL,
		"media", len(items),
		"elapsed", time.Since(start),
	)

	return &models.ExtractResult{
		Media:      items,
		ScrapedURL: res.FinalURL,
		Title:      title,
	}, nil
}
