// Package github defines the typed entity shapes decoded from the GitHub
// REST API. Decoding is strict: a payload that does not match the expected
// shape is a decode failure, never a silently dropped field.
package github

import "time"

// User represents a GitHub user account
type User struct {
	Login   string `json:"login"`
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	HTMLURL string `json:"html_url"`
}

// RepositoryPermissions describes the viewer's access to a repository
type RepositoryPermissions struct {
	Admin    bool `json:"admin"`
	Maintain bool `json:"maintain"`
	Push     bool `json:"push"`
	Triage   bool `json:"triage"`
	Pull     bool `json:"pull"`
}

// Repository represents a GitHub repository
type Repository struct {
	Name          string                 `json:"name"`
	FullName      string                 `json:"full_name"`
	DefaultBranch string                 `json:"default_branch"`
	Private       bool                   `json:"private"`
	Archived      bool                   `json:"archived"`
	Owner         User                   `json:"owner"`
	Description   string                 `json:"description,omitempty"`
	Permissions   *RepositoryPermissions `json:"permissions,omitempty"`
}

// IssueState is the lifecycle state of an issue or pull request
type IssueState string

const (
	IssueStateOpen   IssueState = "open"
	IssueStateClosed IssueState = "closed"
)

// PullRequestRef marks an entry in an issue list as a pull request. The
// issues endpoint returns both; the presence of this object is the
// distinguishing signal.
type PullRequestRef struct {
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

// Issue represents a GitHub issue. Pull requests listed through the issues
// endpoint carry a non-nil PullRequest ref.
type Issue struct {
	ID          int64           `json:"id"`
	Number      int             `json:"number"`
	Comments    int             `json:"comments"`
	Locked      bool            `json:"locked"`
	State       IssueState      `json:"state"`
	Title       string          `json:"title"`
	Body        string          `json:"body,omitempty"`
	User        User            `json:"user"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	Assignee    *User           `json:"assignee,omitempty"`
	Assignees   []User          `json:"assignees,omitempty"`
	CommentsURL string          `json:"comments_url"`
	PullRequest *PullRequestRef `json:"pull_request,omitempty"`
}

// IsPullRequest reports whether this issue entry is actually a pull request
func (i *Issue) IsPullRequest() bool {
	return i.PullRequest != nil
}

// Ref is one side of a pull request (head or base)
type Ref struct {
	User User   `json:"user"`
	Ref  string `json:"ref"`
	SHA  string `json:"sha"`
}

// PullRequest represents a GitHub pull request
type PullRequest struct {
	ID           int64      `json:"id"`
	Number       int        `json:"number"`
	State        IssueState `json:"state"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	User         User       `json:"user"`
	Draft        bool       `json:"draft"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	Commits      int        `json:"commits"`
	Head         Ref        `json:"head"`
	Base         Ref        `json:"base"`
	HTMLURL      string     `json:"html_url"`
	DiffURL      string     `json:"diff_url"`
}

// IssueComment represents a comment on an issue or pull request
type IssueComment struct {
	ID                int64     `json:"id"`
	Body              string    `json:"body"`
	User              *User     `json:"user,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	AuthorAssociation string    `json:"author_association"`
}

// ReviewState is the outcome of a pull request review
type ReviewState string

const (
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewCommented        ReviewState = "COMMENTED"
)

// Review represents a pull request review
type Review struct {
	ID          int64       `json:"id"`
	User        User        `json:"user"`
	Body        string      `json:"body"`
	State       ReviewState `json:"state"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// WorkflowRun represents one run of a GitHub Actions workflow
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	HeadBranch string    `json:"head_branch"`
	HeadSHA    string    `json:"head_sha"`
	RunNumber  int       `json:"run_number"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	HTMLURL    string    `json:"html_url"`
}

// WorkflowRunList is the envelope returned by the workflow runs endpoint
type WorkflowRunList struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// MergeResult is the response to a pull request merge call
type MergeResult struct {
	SHA     string `json:"sha"`
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
}
