// Package client implements the authenticated GitHub API client that
// composes the response cache, rate governor, and pagination engine into
// typed fetch operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lazyhub/lazyhub/pkg/config"
	"github.com/lazyhub/lazyhub/pkg/httpcache"
	"github.com/lazyhub/lazyhub/pkg/logging"
	"github.com/lazyhub/lazyhub/pkg/ratelimit"
)

const (
	defaultMediaType = "application/vnd.github+json"
	diffMediaType    = "application/vnd.github.diff"
	apiVersion       = "2022-11-28"
)

// FetchObserver receives fetch-path events: one call per network dispatch,
// cache hit, successful revalidation, and rate-budget wait. Implementations
// must be safe for concurrent use; pagination look-ahead fires events from
// its own goroutine.
type FetchObserver interface {
	RequestDispatched()
	CacheHit()
	Revalidated()
	RateLimitWait(delay time.Duration)
}

// Client is the typed GitHub API client. All shared state (cache, governor)
// is passed in explicitly; there are no package-level singletons.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	creds    CredentialProvider
	cache    *httpcache.Cache
	governor *ratelimit.Governor
	backoff  ratelimit.Strategy
	cfg      *config.Config
	logger   *logging.Logger
	observer FetchObserver
	group    singleflight.Group
}

// New creates a Client over the given collaborators
func New(cfg *config.Config, creds CredentialProvider, cache *httpcache.Cache, governor *ratelimit.Governor, logger *logging.Logger) (*Client, error) {
	baseURL, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
		cache:    cache,
		governor: governor,
		backoff:  ratelimit.NewExponential(cfg.BackoffBase, cfg.BackoffMultiplier, cfg.MaxBackoff),
		cfg:      cfg,
		logger:   logger.WithComponent("client"),
	}, nil
}

// Invalidate removes every cached entry under the given resource path.
// Called after mutating actions so the next read bypasses the cache.
func (c *Client) Invalidate(path string) {
	c.cache.InvalidatePrefix(path)
}

// SetObserver installs a fetch-path observer. Must be called before the
// first fetch; a nil observer means no events.
func (c *Client) SetObserver(observer FetchObserver) {
	c.observer = observer
}

func (c *Client) observeDispatch() {
	if c.observer != nil {
		c.observer.RequestDispatched()
	}
}

func (c *Client) observeRateWait(delay time.Duration) {
	if c.observer != nil {
		c.observer.RateLimitWait(delay)
	}
}

// getEntry is the core read path: cache lookup, conditional revalidation,
// rate governance, and transport, coalesced so at most one fetch per
// RequestKey is in flight. Concurrent callers for the same key share the
// first caller's fetch and result.
func (c *Client) getEntry(ctx context.Context, path string, query url.Values, kind, mediaType string) (*httpcache.Entry, error) {
	key := httpcache.NewKeyWithMedia(http.MethodGet, path, query, mediaType)

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		return c.fetch(ctx, key, path, query, kind, mediaType)
	})
	if err != nil {
		return nil, err
	}
	return v.(*httpcache.Entry), nil
}

func (c *Client) fetch(ctx context.Context, key httpcache.Key, path string, query url.Values, kind, mediaType string) (*httpcache.Entry, error) {
	cached, freshness := c.cache.Lookup(key)
	if freshness == httpcache.Fresh {
		c.logger.Debug("cache hit", "key", key.String())
		if c.observer != nil {
			c.observer.CacheHit()
		}
		return cached, nil
	}
	conditional := freshness == httpcache.Stale
	if conditional {
		c.logger.Debug("revalidating stale entry", "key", key.String())
	}

	authRetried := false
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if wait := c.governor.BeforeDispatch(); wait > 0 {
			c.observeRateWait(wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}

		req, err := c.newRequest(ctx, http.MethodGet, path, query, mediaType, nil)
		if err != nil {
			return nil, err
		}
		if conditional && cached != nil {
			if etag := cached.ETag(); etag != "" {
				req.Header.Set("If-None-Match", etag)
			}
			if lastModified := cached.LastModified(); lastModified != "" {
				req.Header.Set("If-Modified-Since", lastModified)
			}
		}

		c.observeDispatch()
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt >= c.cfg.MaxRetries {
				return nil, &NetworkError{Err: err}
			}
			c.logger.Warn("transport error, retrying", "key", key.String(), "attempt", attempt+1, "error", err)
			if err := sleepCtx(ctx, c.backoff.Delay(attempt + 1)); err != nil {
				return nil, err
			}
			continue
		}

		c.governor.Record(resp)
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt >= c.cfg.MaxRetries {
				return nil, &NetworkError{Err: readErr}
			}
			if err := sleepCtx(ctx, c.backoff.Delay(attempt + 1)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotModified:
			if refreshed := c.cache.Refresh(key, resp.Header); refreshed != nil {
				if c.observer != nil {
					c.observer.Revalidated()
				}
				return refreshed, nil
			}
			// The entry vanished between lookup and revalidation;
			// refetch unconditionally
			conditional = false
			cached = nil
			continue

		case resp.StatusCode == http.StatusUnauthorized:
			if authRetried {
				return nil, &AuthExpiredError{Err: errors.New("token rejected after refresh")}
			}
			if _, err := c.creds.Refresh(ctx); err != nil {
				return nil, &AuthExpiredError{Err: err}
			}
			c.logger.Info("credential refreshed after 401", "key", key.String())
			authRetried = true
			continue

		case ratelimit.IsRateLimited(resp):
			if attempt >= c.cfg.MaxRetries {
				return nil, &RateLimitedError{ResetAt: c.governor.Snapshot().Reset}
			}
			delay := c.governor.RetryDelay(resp, attempt+1)
			c.logger.Warn("rate limited, backing off", "key", key.String(), "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			if attempt >= c.cfg.MaxRetries {
				return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			}
			if err := sleepCtx(ctx, c.backoff.Delay(attempt + 1)); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 400:
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}

		default:
			entry := &httpcache.Entry{
				StatusCode: resp.StatusCode,
				Header:     resp.Header.Clone(),
				Body:       body,
				TTL:        c.cfg.TTLForKind(kind),
			}
			c.cache.Put(key, entry)
			return entry, nil
		}
	}
}

// mutate performs a write call (POST/PUT/PATCH). Mutations bypass the
// cache but still pass auth, rate governance, and the retry paths.
func (c *Client) mutate(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	authRetried := false
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if wait := c.governor.BeforeDispatch(); wait > 0 {
			c.observeRateWait(wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}

		req, err := c.newRequest(ctx, method, path, nil, "", encoded)
		if err != nil {
			return nil, err
		}

		c.observeDispatch()
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt >= c.cfg.MaxRetries {
				return nil, &NetworkError{Err: err}
			}
			if err := sleepCtx(ctx, c.backoff.Delay(attempt + 1)); err != nil {
				return nil, err
			}
			continue
		}

		c.governor.Record(resp)
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &NetworkError{Err: readErr}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if authRetried {
				return nil, &AuthExpiredError{Err: errors.New("token rejected after refresh")}
			}
			if _, err := c.creds.Refresh(ctx); err != nil {
				return nil, &AuthExpiredError{Err: err}
			}
			authRetried = true
			continue

		case ratelimit.IsRateLimited(resp):
			if attempt >= c.cfg.MaxRetries {
				return nil, &RateLimitedError{ResetAt: c.governor.Snapshot().Reset}
			}
			if err := sleepCtx(ctx, c.governor.RetryDelay(resp, attempt+1)); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 400:
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}

		default:
			return body, nil
		}
	}
}

// newRequest builds a request carrying the current credential and GitHub
// media type headers.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, mediaType string, body []byte) (*http.Request, error) {
	cred, err := c.creds.Current(ctx)
	if err != nil {
		return nil, &AuthExpiredError{Err: err}
	}

	target := *c.baseURL
	target.Path = path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}

	accept := mediaType
	if accept == "" {
		accept = defaultMediaType
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// sleepCtx waits for the duration or the context, whichever ends first
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
