package extractor

import (
	"bytes"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/mediagrab/media"
	"github.com/use-agent/mediagrab/models"
)

// accumulator applies resolve, classify and name to every reference and
// keeps the first accepted occurrence of each absolute URL.
type accumulator struct {
	base  *url.URL
	seen  map[string]struct{}
	items []models.MediaItem
}

func newAccumulator(base *url.URL) *accumulator {
	return &accumulator{
		base:  base,
		seen:  make(map[string]struct{}),
		items: []models.MediaItem{},
	}
}

func (a *accumulator) add(p *pass, r ref) {
	abs := media.Resolve(a.base, r.value)
	if abs == "" {
		return
	}
	if _, dup := a.seen[abs]; dup {
		return
	}
	typ := media.Classify(abs)
	if typ == models.MediaNone || !p.accepts[typ] {
		return
	}
	a.seen[abs] = struct{}{}
	a.items = append(a.items, models.MediaItem{
		URL:        abs,
		Type:       typ,
		Filename:   media.DeriveFilename(abs, typ),
		Dimensions: r.dimensions,
	})
}

// FromHTML runs every pass over body and returns the deduplicated, sorted
// candidates. Markup that cannot be parsed yields an empty list.
func FromHTML(body []byte, base *url.URL) []models.MediaItem {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("extractor: unparseable page, returning no media", "url", base.String(), "error", err)
		return []models.MediaItem{}
	}

	acc := newAccumulator(base)
	for i := range passes {
		p := &passes[i]
		doc.FindMatcher(p.matcher).Each(func(_ int, s *goquery.Selection) {
			if r, ok := p.read(s); ok {
				acc.add(p, r)
			}
		})
	}

	SortMedia(acc.items)
	return acc.items
}
