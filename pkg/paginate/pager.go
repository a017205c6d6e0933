// Package paginate turns a single logical list request into a lazy,
// bounded sequence of pages following the GitHub Link header convention.
package paginate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/lazyhub/lazyhub/pkg/httpcache"
)

// FetchFunc performs one full fetch pass (cache, rate governor, transport)
// for a page's own request identity.
type FetchFunc func(ctx context.Context, path string, query url.Values) (*httpcache.Entry, error)

// Page is one fetched response body. HasNext reports whether the server
// advertised a following page; the cursor for page N+1 is only obtainable
// from page N's response.
type Page struct {
	Key     httpcache.Key
	Body    []byte
	Index   int
	HasNext bool
}

// Options bound a pager's traversal
type Options struct {
	// MaxPages is the strict upper bound on fetched pages (0 means 1)
	MaxPages int
	// Lookahead warms the cache for page N+1 in the background after page
	// N is yielded; never more than one page ahead
	Lookahead bool
}

// Pager yields pages in server-assigned order, fetching each lazily. A
// fresh Pager always starts from the first page; sequences are not
// resumable across instances.
type Pager struct {
	fetch   FetchFunc
	path    string
	query   url.Values
	opts    Options
	fetched int
	next    *pageRequest
	started bool
	done    bool
	ahead   sync.WaitGroup
}

type pageRequest struct {
	path  string
	query url.Values
}

// NewPager creates a pager for the given initial request
func NewPager(fetch FetchFunc, path string, query url.Values, opts Options) *Pager {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	return &Pager{
		fetch: fetch,
		path:  path,
		query: cloneValues(query),
		opts:  opts,
	}
}

// Next fetches and returns the next page, or (nil, nil) once the sequence
// is exhausted. Cancellation is checked before each fetch; a failed page
// ends the sequence.
func (p *Pager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		p.done = true
		return nil, err
	}

	// A look-ahead fetch for this page may still be warming the cache;
	// joining it keeps at most one fetch in flight per key
	p.ahead.Wait()

	req := p.currentRequest()
	if req == nil {
		p.done = true
		return nil, nil
	}

	entry, err := p.fetch(ctx, req.path, req.query)
	if err != nil {
		p.done = true
		return nil, err
	}

	p.started = true
	p.fetched++
	index := p.fetched

	nextURL := nextLink(entry.NextLink())
	page := &Page{
		Key:     httpcache.NewKey("GET", req.path, req.query),
		Body:    entry.Body,
		Index:   index,
		HasNext: nextURL != nil,
	}

	if nextURL == nil || p.fetched >= p.opts.MaxPages {
		p.next = nil
		p.done = true
		return page, nil
	}

	p.next = &pageRequest{path: nextURL.Path, query: nextURL.Query()}

	if p.opts.Lookahead {
		ahead := *p.next
		p.ahead.Add(1)
		go func() {
			defer p.ahead.Done()
			// Best-effort cache warming; the real fetch re-issues on error
			_, _ = p.fetch(ctx, ahead.path, ahead.query)
		}()
	}

	return page, nil
}

// Collect drains the pager, returning all pages in order
func (p *Pager) Collect(ctx context.Context) ([]*Page, error) {
	var pages []*Page
	for {
		page, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return pages, nil
		}
		pages = append(pages, page)
	}
}

func (p *Pager) currentRequest() *pageRequest {
	if !p.started {
		return &pageRequest{path: p.path, query: cloneValues(p.query)}
	}
	return p.next
}

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextLink extracts the rel="next" target from a Link header value
func nextLink(linkHeader string) *url.URL {
	if linkHeader == "" || !strings.Contains(linkHeader, `rel="next"`) {
		return nil
	}
	matches := nextLinkPattern.FindStringSubmatch(linkHeader)
	if len(matches) < 2 {
		return nil
	}
	u, err := url.Parse(matches[1])
	if err != nil {
		return nil
	}
	return u
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return url.Values{}
	}
	dup := make(url.Values, len(v))
	for k, vals := range v {
		dup[k] = append([]string(nil), vals...)
	}
	return dup
}

// String describes the pager's initial request, for logging
func (p *Pager) String() string {
	return fmt.Sprintf("pager %s?%s", p.path, p.query.Encode())
}
