package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/mediagrab/models"
)

// ref is one raw reference pulled out of the markup by a pass.
type ref struct {
	value      string
	dimensions string
}

// pass walks one class of media-bearing construct. Passes run in order
// over the same document and feed a shared accumulator.
type pass struct {
	name    string
	matcher cascadia.Selector
	accepts map[models.MediaType]bool
	read    func(s *goquery.Selection) (ref, bool)
}

var backgroundImage = regexp.MustCompile(`(?i)background-image\s*:\s*url\(\s*(?:"([^"]*)"|'([^']*)'|([^'"()\s]+))\s*\)`)

var passes = []pass{
	{
		name:    "img",
		matcher: cascadia.MustCompile("img"),
		accepts: only(models.MediaImage),
		read: func(s *goquery.Selection) (ref, bool) {
			src, ok := s.Attr("src")
			if !ok {
				return ref{}, false
			}
			return ref{value: src, dimensions: dimensions(s)}, true
		},
	},
	{
		name:    "video",
		matcher: cascadia.MustCompile("video, video source"),
		accepts: only(models.MediaVideo),
		read:    attr("src"),
	},
	{
		name:    "audio",
		matcher: cascadia.MustCompile("audio, audio source"),
		accepts: only(models.MediaAudio),
		read:    attr("src"),
	},
	{
		name:    "link",
		matcher: cascadia.MustCompile("a"),
		accepts: only(models.MediaImage, models.MediaVideo, models.MediaAudio),
		read:    attr("href"),
	},
	{
		name:    "background",
		matcher: cascadia.MustCompile("[style]"),
		accepts: only(models.MediaImage),
		read: func(s *goquery.Selection) (ref, bool) {
			style, _ := s.Attr("style")
			v, ok := BackgroundImageURL(style)
			return ref{value: v}, ok
		},
	},
}

// BackgroundImageURL returns the first background-image url(...) token of
// an inline style. Quotes around the URL must match.
func BackgroundImageURL(style string) (string, bool) {
	m := backgroundImage.FindStringSubmatch(style)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

func only(types ...models.MediaType) map[models.MediaType]bool {
	m := make(map[models.MediaType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func attr(name string) func(s *goquery.Selection) (ref, bool) {
	return func(s *goquery.Selection) (ref, bool) {
		v, ok := s.Attr(name)
		return ref{value: v}, ok
	}
}

// dimensions formats "{w}×{h}" when both attributes are plain integers.
func dimensions(s *goquery.Selection) string {
	w, ok := numericAttr(s, "width")
	if !ok {
		return ""
	}
	h, ok := numericAttr(s, "height")
	if !ok {
		return ""
	}
	return strconv.Itoa(w) + "×" + strconv.Itoa(h)
}

func numericAttr(s *goquery.Selection, name string) (int, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
