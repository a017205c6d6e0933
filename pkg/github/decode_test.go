package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Issue(t *testing.T) {
	// Given a well-formed issue payload
	body := []byte(`{
		"id": 42, "number": 7, "comments": 3, "locked": false,
		"state": "open", "title": "flaky pagination",
		"user": {"login": "octocat", "id": 1, "html_url": "https://github.com/octocat"},
		"created_at": "2024-05-01T10:00:00Z",
		"updated_at": "2024-05-02T10:00:00Z",
		"comments_url": "https://api.github.com/repos/acme/widget/issues/7/comments"
	}`)

	// When it is decoded
	issue, err := Decode[Issue](body, "issue")
	require.NoError(t, err)

	// Then the typed fields are populated
	assert.Equal(t, int64(42), issue.ID)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, IssueStateOpen, issue.State)
	assert.Equal(t, "octocat", issue.User.Login)
	assert.False(t, issue.IsPullRequest())
}

func TestDecode_IssueListMarksPullRequests(t *testing.T) {
	// The issues endpoint mixes issues and pull requests; the pull_request
	// key is the only distinguishing signal.
	body := []byte(`[
		{"id": 1, "number": 1, "comments": 0, "locked": false, "state": "open",
		 "title": "plain issue", "user": {"login": "a", "id": 1, "html_url": "u"},
		 "created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T10:00:00Z",
		 "comments_url": "c"},
		{"id": 2, "number": 2, "comments": 0, "locked": false, "state": "open",
		 "title": "a pr", "user": {"login": "b", "id": 2, "html_url": "u"},
		 "created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T10:00:00Z",
		 "comments_url": "c", "pull_request": {"url": "p", "html_url": "h"}}
	]`)

	issues, err := DecodeList[Issue](body, "issues")
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.False(t, issues[0].IsPullRequest())
	assert.True(t, issues[1].IsPullRequest())
}

func TestDecode_TypeMismatchIsDecodeError(t *testing.T) {
	// Given a payload whose shape drifted (id became a string)
	body := []byte(`{"id": "not-a-number", "number": 7}`)

	_, err := Decode[Issue](body, "issue")
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "issue", decodeErr.Target)
}

func TestDecode_MalformedJSONIsDecodeError(t *testing.T) {
	_, err := DecodeList[Repository]([]byte(`[{"name": "x"`), "repositories")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecode_WorkflowRunEnvelope(t *testing.T) {
	body := []byte(`{
		"total_count": 1,
		"workflow_runs": [
			{"id": 9, "name": "ci", "head_branch": "main", "head_sha": "abc",
			 "run_number": 12, "event": "push", "status": "completed",
			 "conclusion": "success",
			 "created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T10:05:00Z",
			 "html_url": "h"}
		]
	}`)

	list, err := Decode[WorkflowRunList](body, "workflow runs")
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)
	require.Len(t, list.WorkflowRuns, 1)
	assert.Equal(t, "success", list.WorkflowRuns[0].Conclusion)
}
