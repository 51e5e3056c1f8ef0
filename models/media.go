package models

// MediaType is the classified kind of a media reference.
type MediaType string

const (
	MediaNone  MediaType = ""
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Rank orders media types for listing: images, then video, then audio.
func (t MediaType) Rank() int {
	switch t {
	case MediaImage:
		return 0
	case MediaVideo:
		return 1
	case MediaAudio:
		return 2
	default:
		return 3
	}
}

// ParseMediaType accepts "image", "video" or "audio".
func ParseMediaType(s string) (MediaType, bool) {
	switch MediaType(s) {
	case MediaImage, MediaVideo, MediaAudio:
		return MediaType(s), true
	}
	return MediaNone, false
}

// MediaItem is one downloadable candidate discovered on a page.
type MediaItem struct {
	URL        string    `json:"url"`
	Type       MediaType `json:"type"`
	Filename   string    `json:"filename"`
	Dimensions string    `json:"dimensions,omitempty"`
	Size       string    `json:"size,omitempty"`
	Selected   bool      `json:"selected"`
}

// ExtractResult is the outcome of a successful extraction.
type ExtractResult struct {
	Media      []MediaItem
	ScrapedURL string
	Title      string
}

// Count returns the number of discovered candidates.
func (r *ExtractResult) Count() int { return len(r.Media) }

// Clone returns a deep copy so callers can mutate Selected freely.
func (r *ExtractResult) Clone() *ExtractResult {
	out := *r
	out.Media = make([]MediaItem, len(r.Media))
	copy(out.Media, r.Media)
	return &out
}
