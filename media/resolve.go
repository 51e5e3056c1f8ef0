// Package media holds the pure helpers that turn a raw markup reference
// into a classified, named download candidate. Nothing here performs I/O.
package media

import (
	"net/url"
	"strings"
)

// Resolve makes ref absolute against base. A reference that cannot be
// parsed is returned trimmed but otherwise unchanged; classification
// decides whether it survives.
func Resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if base == nil {
		return ref
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return resolved.String()
}

// ParsePageURL validates that raw is an absolute http(s) URL with a host.
func ParsePageURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}
	return u, true
}
