package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lazyhub/lazyhub/pkg/github"
	"github.com/lazyhub/lazyhub/pkg/httpcache"
	"github.com/lazyhub/lazyhub/pkg/paginate"
)

// pager builds a pagination engine whose page fetches run the full cached,
// governed read path for the given resource kind.
func (c *Client) pager(path string, query url.Values, kind string) *paginate.Pager {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(c.cfg.PerPage))

	fetch := func(ctx context.Context, path string, query url.Values) (*httpcache.Entry, error) {
		return c.getEntry(ctx, path, query, kind, "")
	}
	return paginate.NewPager(fetch, path, query, paginate.Options{
		MaxPages:  c.cfg.MaxPages,
		Lookahead: c.cfg.Lookahead,
	})
}

// collectPages drains a pager, decoding each page body and preserving
// server order. A failure on any page fails the whole collection; pages
// already cached stay valid for a retry.
func collectPages[T any](ctx context.Context, pager *paginate.Pager, decode func([]byte) ([]T, error)) ([]T, error) {
	var items []T
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return items, nil
		}
		pageItems, err := decode(page.Body)
		if err != nil {
			return nil, err
		}
		items = append(items, pageItems...)
	}
}

// ListRepositories lists the authenticated user's repositories
func (c *Client) ListRepositories(ctx context.Context) ([]github.Repository, error) {
	query := url.Values{}
	query.Set("type", "all")
	query.Set("sort", "full_name")
	query.Set("direction", "asc")

	pager := c.pager("/user/repos", query, "repository")
	return collectPages(ctx, pager, func(body []byte) ([]github.Repository, error) {
		return github.DecodeList[github.Repository](body, "repositories")
	})
}

// GetRepository fetches a repository by owner and name
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	entry, err := c.getEntry(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, "repository", "")
	if err != nil {
		return nil, err
	}
	repository, err := github.Decode[github.Repository](entry.Body, "repository")
	if err != nil {
		return nil, err
	}
	return &repository, nil
}

// ListIssues lists a repository's issues in server order. state is "open",
// "closed", or "all". Pull requests appear in the result with their
// PullRequest ref set, as the API returns them.
func (c *Client) ListIssues(ctx context.Context, owner, repo, state string) ([]github.Issue, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", state)
	}

	pager := c.pager(fmt.Sprintf("/repos/%s/%s/issues", owner, repo), query, "issues")
	return collectPages(ctx, pager, func(body []byte) ([]github.Issue, error) {
		return github.DecodeList[github.Issue](body, "issues")
	})
}

// GetIssue fetches one issue
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	entry, err := c.getEntry(ctx, path, nil, "issues", "")
	if err != nil {
		return nil, err
	}
	issue, err := github.Decode[github.Issue](entry.Body, "issue")
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssueComments lists the comments on an issue or pull request
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]github.IssueComment, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	pager := c.pager(path, nil, "issues")
	return collectPages(ctx, pager, func(body []byte) ([]github.IssueComment, error) {
		return github.DecodeList[github.IssueComment](body, "issue comments")
	})
}

// ListPullRequests lists a repository's pull requests
func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state string) ([]github.PullRequest, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", state)
	}

	pager := c.pager(fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), query, "pulls")
	return collectPages(ctx, pager, func(body []byte) ([]github.PullRequest, error) {
		return github.DecodeList[github.PullRequest](body, "pull requests")
	})
}

// GetPullRequest fetches the full detail of one pull request
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	entry, err := c.getEntry(ctx, path, nil, "pulls", "")
	if err != nil {
		return nil, err
	}
	pr, err := github.Decode[github.PullRequest](entry.Body, "pull request")
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// GetPullRequestDiff fetches the raw diff for a pull request. The diff
// media type gives the request its own cache identity.
func (c *Client) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	entry, err := c.getEntry(ctx, path, nil, "pulls", diffMediaType)
	if err != nil {
		return "", err
	}
	return string(entry.Body), nil
}

// ListReviews lists the reviews on a pull request
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]github.Review, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number)
	pager := c.pager(path, nil, "pulls")
	return collectPages(ctx, pager, func(body []byte) ([]github.Review, error) {
		return github.DecodeList[github.Review](body, "reviews")
	})
}

// ListWorkflowRuns lists a repository's workflow runs. The endpoint wraps
// its items in a total_count envelope.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo string) ([]github.WorkflowRun, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs", owner, repo)
	pager := c.pager(path, nil, "workflows")
	return collectPages(ctx, pager, func(body []byte) ([]github.WorkflowRun, error) {
		list, err := github.Decode[github.WorkflowRunList](body, "workflow runs")
		if err != nil {
			return nil, err
		}
		return list.WorkflowRuns, nil
	})
}

// GetUser fetches the authenticated user
func (c *Client) GetUser(ctx context.Context) (*github.User, error) {
	entry, err := c.getEntry(ctx, "/user", nil, "", "")
	if err != nil {
		return nil, err
	}
	user, err := github.Decode[github.User](entry.Body, "user")
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateIssueComment posts a comment and invalidates the repository's
// issue listings so the next read sees it.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*github.IssueComment, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	respBody, err := c.mutate(ctx, "POST", path, map[string]string{"body": body})
	if err != nil {
		return nil, err
	}

	c.Invalidate(fmt.Sprintf("/repos/%s/%s/issues", owner, repo))

	comment, err := github.Decode[github.IssueComment](respBody, "issue comment")
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// MergePullRequest merges a pull request. The head SHA must match for the
// merge to succeed. Both the pulls and issues listings are invalidated.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, headSHA, mergeMethod string) (*github.MergeResult, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, number)
	payload := map[string]string{"merge_method": mergeMethod, "sha": headSHA}
	respBody, err := c.mutate(ctx, "PUT", path, payload)
	if err != nil {
		return nil, err
	}

	c.Invalidate(fmt.Sprintf("/repos/%s/%s/pulls", owner, repo))
	c.Invalidate(fmt.Sprintf("/repos/%s/%s/issues", owner, repo))

	result, err := github.Decode[github.MergeResult](respBody, "merge result")
	if err != nil {
		return nil, err
	}
	return &result, nil
}
