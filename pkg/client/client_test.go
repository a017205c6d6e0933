package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazyhub/lazyhub/pkg/config"
	"github.com/lazyhub/lazyhub/pkg/github"
	"github.com/lazyhub/lazyhub/pkg/httpcache"
	"github.com/lazyhub/lazyhub/pkg/ratelimit"
)

// refreshableProvider swaps its token on refresh, like a device-flow
// collaborator would
type refreshableProvider struct {
	mu       sync.Mutex
	token    string
	next     string
	refreshd int
	fail     bool
}

func (p *refreshableProvider) Current(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Credential{Token: p.token}, nil
}

func (p *refreshableProvider) Refresh(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshd++
	if p.fail {
		return Credential{}, ErrNoRefresh
	}
	p.token = p.next
	return Credential{Token: p.token}, nil
}

type testEnv struct {
	client   *Client
	cache    *httpcache.Cache
	server   *httptest.Server
	requests *atomic.Int64
}

func newTestEnv(t *testing.T, handler http.HandlerFunc, tune func(*config.Config)) *testEnv {
	t.Helper()

	requests := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.APIBaseURL = server.URL
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.PerPage = 25
	if tune != nil {
		tune(cfg)
	}

	cache := httpcache.New(nil, nil)
	governor := ratelimit.NewGovernor(cfg.RateLimitThreshold,
		ratelimit.NewExponential(cfg.BackoffBase, cfg.BackoffMultiplier, cfg.MaxBackoff),
		cfg.MaxRetryAfter, nil)

	c, err := New(cfg, NewStaticTokenProvider("test-token"), cache, governor, nil)
	require.NoError(t, err)

	return &testEnv{client: c, cache: cache, server: server, requests: requests}
}

func issuePage(start, count int) []byte {
	issues := make([]github.Issue, count)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range issues {
		n := start + i
		issues[i] = github.Issue{
			ID:          int64(n),
			Number:      n,
			State:       github.IssueStateOpen,
			Title:       fmt.Sprintf("issue-%d", n),
			User:        github.User{Login: "octocat", ID: 1, HTMLURL: "u"},
			CreatedAt:   now,
			UpdatedAt:   now,
			CommentsURL: "c",
		}
	}
	body, _ := json.Marshal(issues)
	return body
}

func TestFetch_FreshCacheIssuesNoSecondRequest(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(issuePage(1, 2))
	}, nil)

	ctx := context.Background()

	first, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	require.Len(t, first, 2)

	// A second identical fetch with a Fresh entry issues zero network calls
	second, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), env.requests.Load())
}

func TestFetch_RevalidationWith304(t *testing.T) {
	body := issuePage(1, 1)
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write(body)
	}, func(cfg *config.Config) {
		cfg.IssueListTTL = 30 * time.Millisecond
	})

	ctx := context.Background()

	first, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)

	// Let the entry go stale, then revalidate
	time.Sleep(50 * time.Millisecond)

	second, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)

	// The 304 returned the previously cached entity
	assert.Equal(t, first, second)
	assert.Equal(t, int64(2), env.requests.Load())

	// And stored-at advanced: the entry is fresh again, so no third call
	third, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, int64(2), env.requests.Load())
}

func TestFetch_CoalescesConcurrentRequests(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write(issuePage(1, 3))
	}, nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([][]github.Issue, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.client.ListIssues(ctx, "acme", "widget", "open")
		}(i)
	}
	wg.Wait()

	// Two concurrent fetches for the same RequestKey produce exactly one
	// network call and both callers receive the same result
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int64(1), env.requests.Load())
}

func TestFetch_ThreePageIssueScenario(t *testing.T) {
	// acme/widget has 60 open issues across pages of 25/25/10
	pages := map[string][]byte{
		"":  issuePage(1, 25),
		"2": issuePage(26, 25),
		"3": issuePage(51, 10),
	}
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		body, ok := pages[page]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if page == "" || page == "2" {
			next := "2"
			if page == "2" {
				next = "3"
			}
			q := r.URL.Query()
			q.Set("page", next)
			w.Header().Set("Link",
				fmt.Sprintf(`<http://%s%s?%s>; rel="next"`, r.Host, r.URL.Path, q.Encode()))
		}
		w.Write(body)
	}, nil)

	ctx := context.Background()

	issues, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)

	// All 60 issues arrive in server order
	require.Len(t, issues, 60)
	for i, issue := range issues {
		assert.Equal(t, i+1, issue.Number)
	}

	// Three distinct RequestKeys were cached, one per page
	assert.Equal(t, 3, env.cache.Len())
	assert.Equal(t, int64(3), env.requests.Load())

	// A second identical fetch issues zero further requests before TTL expiry
	again, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	assert.Equal(t, issues, again)
	assert.Equal(t, int64(3), env.requests.Load())
}

func TestFetch_AuthRefreshOn401(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write(issuePage(1, 1))
	}, nil)

	provider := &refreshableProvider{token: "expired-token", next: "fresh-token"}
	env.client.creds = provider

	issues, err := env.client.ListIssues(context.Background(), "acme", "widget", "open")
	require.NoError(t, err)

	assert.Len(t, issues, 1)
	assert.Equal(t, 1, provider.refreshd)
	assert.Equal(t, int64(2), env.requests.Load())
}

func TestFetch_AuthExpiredWhenRefreshFails(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	_, err := env.client.ListIssues(context.Background(), "acme", "widget", "open")
	require.Error(t, err)

	var authErr *AuthExpiredError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, int64(1), env.requests.Load())
}

func TestFetch_AuthExpiredWhenRefreshedTokenRejected(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)
	env.client.creds = &refreshableProvider{token: "a", next: "b"}

	_, err := env.client.ListIssues(context.Background(), "acme", "widget", "open")

	var authErr *AuthExpiredError
	require.ErrorAs(t, err, &authErr)
	// One refresh, one retry, then failure
	assert.Equal(t, int64(2), env.requests.Load())
}

func TestFetch_RateLimitedAfterRetries(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)

	_, err := env.client.ListIssues(context.Background(), "acme", "widget", "open")
	require.Error(t, err)

	var limitErr *RateLimitedError
	assert.ErrorAs(t, err, &limitErr)
	// Initial attempt plus MaxRetries retries
	assert.Equal(t, int64(3), env.requests.Load())
}

func TestFetch_NetworkErrorAfterRetries(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	env.server.Close()

	_, err := env.client.ListIssues(context.Background(), "acme", "widget", "open")
	require.Error(t, err)

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestFetch_DecodeErrorSurfacesImmediately(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		// id drifted to a string: schema mismatch, not a dropped field
		w.Write([]byte(`{"id": "not-a-number"}`))
	}, nil)

	_, err := env.client.GetIssue(context.Background(), "acme", "widget", 7)
	require.Error(t, err)

	var decodeErr *github.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	// Decode failures are never retried
	assert.Equal(t, int64(1), env.requests.Load())
}

func TestFetch_NotFoundIsAPIError(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, nil)

	_, err := env.client.GetRepository(context.Background(), "acme", "missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestMutation_InvalidatesIssuePrefix(t *testing.T) {
	comment := github.IssueComment{ID: 99, Body: "done", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	commentBody, _ := json.Marshal(comment)

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write(commentBody)
			return
		}
		w.Write(issuePage(1, 1))
	}, nil)

	ctx := context.Background()

	_, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.requests.Load())

	created, err := env.client.CreateIssueComment(ctx, "acme", "widget", 1, "done")
	require.NoError(t, err)
	assert.Equal(t, int64(99), created.ID)

	// The mutation invalidated the issues prefix: the next read refetches
	_, err = env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.requests.Load())
}

func TestFetch_DiffAndDetailCacheSeparately(t *testing.T) {
	pr := github.PullRequest{ID: 1, Number: 7, State: github.IssueStateOpen, Title: "t",
		User: github.User{Login: "a", ID: 1, HTMLURL: "u"},
		CreatedAt: time.Now(), UpdatedAt: time.Now()}
	prBody, _ := json.Marshal(pr)

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/vnd.github.diff" {
			w.Write([]byte("diff --git a/main.go b/main.go"))
			return
		}
		w.Write(prBody)
	}, nil)

	ctx := context.Background()

	detail, err := env.client.GetPullRequest(ctx, "acme", "widget", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, detail.Number)

	diff, err := env.client.GetPullRequestDiff(ctx, "acme", "widget", 7)
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git")

	// Same path, different media type: two entries, two fetches
	assert.Equal(t, 2, env.cache.Len())
	assert.Equal(t, int64(2), env.requests.Load())
}

func TestFetch_CancelledContext(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(issuePage(1, 1))
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), env.requests.Load())
}

func TestFetch_SendsPerPageAndAuth(t *testing.T) {
	var gotQuery url.Values
	var gotAuth string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		w.Write(issuePage(1, 1))
	}, nil)

	_, err := env.client.ListIssues(context.Background(), "acme", "widget", "open")
	require.NoError(t, err)

	assert.Equal(t, "25", gotQuery.Get("per_page"))
	assert.Equal(t, "open", gotQuery.Get("state"))
	assert.Equal(t, "Bearer test-token", gotAuth)
}

// countingObserver records fetch-path events for assertions
type countingObserver struct {
	dispatched    atomic.Int64
	cacheHits     atomic.Int64
	revalidations atomic.Int64
	rateWaits     atomic.Int64
}

func (o *countingObserver) RequestDispatched() { o.dispatched.Add(1) }

func (o *countingObserver) CacheHit() { o.cacheHits.Add(1) }

func (o *countingObserver) Revalidated() { o.revalidations.Add(1) }

func (o *countingObserver) RateLimitWait(time.Duration) { o.rateWaits.Add(1) }

func TestObserver_SeesDispatchHitAndRevalidation(t *testing.T) {
	// Given a server that answers conditional requests with 304
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write(issuePage(1, 1))
	}, func(cfg *config.Config) {
		cfg.IssueListTTL = 30 * time.Millisecond
	})
	observer := &countingObserver{}
	env.client.SetObserver(observer)

	ctx := context.Background()

	// When fetching, refetching fresh, and revalidating stale
	_, err := env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	_, err = env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = env.client.ListIssues(ctx, "acme", "widget", "open")
	require.NoError(t, err)

	// Then every event class was reported once
	assert.Equal(t, int64(2), observer.dispatched.Load())
	assert.Equal(t, int64(1), observer.cacheHits.Load())
	assert.Equal(t, int64(1), observer.revalidations.Load())
	assert.Equal(t, int64(0), observer.rateWaits.Load())
	assert.Equal(t, int64(2), env.requests.Load())
}

func TestListWorkflowRuns_DecodesEnvelope(t *testing.T) {
	list := github.WorkflowRunList{
		TotalCount: 2,
		WorkflowRuns: []github.WorkflowRun{
			{ID: 1, Name: "ci", Status: "completed", Conclusion: "success", CreatedAt: time.Now(), UpdatedAt: time.Now()},
			{ID: 2, Name: "ci", Status: "in_progress", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		},
	}
	body, _ := json.Marshal(list)

	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}, nil)

	runs, err := env.client.ListWorkflowRuns(context.Background(), "acme", "widget")
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, "success", runs[0].Conclusion)
}
