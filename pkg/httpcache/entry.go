package httpcache

import (
	"net/http"
	"time"
)

// Freshness classifies a cache lookup result
type Freshness int

const (
	// Miss means no usable entry exists; the caller fetches from origin
	Miss Freshness = iota
	// Stale means an entry exists but its TTL elapsed; the caller should
	// revalidate with the stored ETag / Last-Modified
	Stale
	// Fresh means the entry is within its TTL and can be served directly
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Entry is one cached HTTP response. At most one Entry exists per Key;
// writes are last-write-wins.
type Entry struct {
	StatusCode int           `json:"status_code"`
	Header     http.Header   `json:"header"`
	Body       []byte        `json:"body"`
	StoredAt   time.Time     `json:"stored_at"`
	TTL        time.Duration `json:"ttl"`
}

// ETag returns the entity validator stored with the entry, if any
func (e *Entry) ETag() string {
	return e.Header.Get("ETag")
}

// LastModified returns the Last-Modified validator, if any
func (e *Entry) LastModified() string {
	return e.Header.Get("Last-Modified")
}

// NextLink returns the raw Link header used for pagination, if any
func (e *Entry) NextLink() string {
	return e.Header.Get("Link")
}

// FreshAt reports whether the entry is within its TTL at the given time
func (e *Entry) FreshAt(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// clone returns a copy with its own header map and body. Stored entries
// are never mutated in place; callers get and keep independent copies.
func (e *Entry) clone() *Entry {
	dup := *e
	dup.Header = e.Header.Clone()
	dup.Body = append([]byte(nil), e.Body...)
	return &dup
}
