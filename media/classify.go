package media

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/use-agent/mediagrab/models"
)

// Extensions missing from both filetype's table and the builtin mime table.
var extraTypes = map[string]string{
	".jpe":  "image/jpeg",
	".jfif": "image/jpeg",
	".apng": "image/apng",
	".svgz": "image/svg+xml",
	".ogv":  "video/ogg",
	".mpeg": "video/mpeg",
	".ts":   "video/mp2t",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".weba": "audio/webm",
	".mpga": "audio/mpeg",
}

func init() {
	for ext, typ := range extraTypes {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// Classify maps an absolute URL to a media type using the extension of its
// path. Query strings and fragments are ignored. No network probing.
func Classify(rawURL string) models.MediaType {
	ext := Extension(rawURL)
	if ext == "" {
		return models.MediaNone
	}
	return typeFromMIME(mimeForExtension(ext))
}

// Extension returns the lower-cased extension (with dot) of the URL path.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

func mimeForExtension(ext string) string {
	if t := filetype.GetType(strings.TrimPrefix(ext, ".")); t != filetype.Unknown {
		return t.MIME.Value
	}
	return mime.TypeByExtension(ext)
}

func typeFromMIME(m string) models.MediaType {
	switch {
	case strings.HasPrefix(m, "image/"):
		return models.MediaImage
	case strings.HasPrefix(m, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(m, "audio/"):
		return models.MediaAudio
	default:
		return models.MediaNone
	}
}
