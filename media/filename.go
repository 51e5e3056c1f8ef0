package media

import (
	"net/url"
	"path"
	"strings"

	"github.com/use-agent/mediagrab/models"
)

const fallbackName = "download"

var defaultExt = map[models.MediaType]string{
	models.MediaImage: ".jpg",
	models.MediaVideo: ".mp4",
	models.MediaAudio: ".mp3",
}

// DeriveFilename returns the last path segment of rawURL, percent-decoded,
// or "download" when the path is empty. A name without a dot gets the
// default extension for t.
func DeriveFilename(rawURL string, t models.MediaType) string {
	name := lastSegment(rawURL)
	if name == "" {
		name = fallbackName
	}
	if strings.Contains(name, ".") {
		return name
	}
	return name + defaultExt[t]
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.EscapedPath()
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	seg := path.Base(p)
	if seg == "." || seg == "/" {
		return ""
	}
	if dec, err := url.PathUnescape(seg); err == nil {
		seg = dec
	}
	return SanitizeFilename(seg)
}

// SanitizeFilename strips path separators and control characters so the
// name is safe to use in a Content-Disposition header or on disk.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '"':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
