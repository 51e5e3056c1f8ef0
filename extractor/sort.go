package extractor

import (
	"sort"

	"github.com/use-agent/mediagrab/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortMedia orders items by type (image, video, audio) and then by filename
// using locale-aware collation. The sort is stable.
func SortMedia(items []models.MediaItem) {
	// Collators keep internal buffers and are not safe for concurrent use.
	c := collate.New(language.English)
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Type.Rank(), items[j].Type.Rank()
		if ri != rj {
			return ri < rj
		}
		return c.CompareString(items[i].Filename, items[j].Filename) < 0
	})
}
