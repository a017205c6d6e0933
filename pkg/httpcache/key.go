// Package httpcache provides the response cache for the GitHub sync layer:
// request identity keys, cached entries with TTL-based freshness, conditional
// revalidation support, and prefix invalidation backed by a persistent store.
package httpcache

import (
	"net/url"
	"path"
	"strings"
)

// Key is the canonical identity of one API call. Two requests with the same
// Key are identical for caching purposes. The media type participates in the
// key because some endpoints (pull request detail vs. diff) share a path and
// differ only in the Accept header; it stays empty for the default JSON
// media type.
type Key struct {
	Method    string
	Path      string
	Query     string
	MediaType string
}

// NewKey builds a Key from a method, path, and query parameters. The path is
// cleaned and the query is sorted so equivalent requests produce equal keys.
func NewKey(method, rawPath string, query url.Values) Key {
	return NewKeyWithMedia(method, rawPath, query, "")
}

// NewKeyWithMedia builds a Key carrying a non-default media type
func NewKeyWithMedia(method, rawPath string, query url.Values, mediaType string) Key {
	p := rawPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)

	encoded := ""
	if len(query) > 0 {
		// url.Values.Encode sorts by key
		encoded = query.Encode()
	}

	return Key{
		Method:    strings.ToUpper(method),
		Path:      p,
		Query:     encoded,
		MediaType: mediaType,
	}
}

// String returns the canonical string form used for persistence and
// coalescing registration.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Method)
	b.WriteByte(' ')
	b.WriteString(k.Path)
	if k.Query != "" {
		b.WriteByte('?')
		b.WriteString(k.Query)
	}
	if k.MediaType != "" {
		b.WriteByte(' ')
		b.WriteString(k.MediaType)
	}
	return b.String()
}

// MatchesPrefix reports whether the key's path falls under the given
// resource path prefix.
func (k Key) MatchesPrefix(prefix string) bool {
	return strings.HasPrefix(k.Path, prefix)
}
