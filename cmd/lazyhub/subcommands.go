package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lazyhub/lazyhub/pkg/github"
)

// parseRepoArg splits an "owner/repo" argument
func parseRepoArg(arg string) (string, string, error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/repo, got %q", arg)
	}
	return parts[0], parts[1], nil
}

// parseNumberArg parses an issue or pull request number argument
func parseNumberArg(arg string) (int, error) {
	number, err := strconv.Atoi(arg)
	if err != nil || number < 1 {
		return 0, fmt.Errorf("expected a positive number, got %q", arg)
	}
	return number, nil
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

// createReposCommand lists the authenticated user's repositories
func createReposCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List your repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch("repositories", func(ctx context.Context, a *app) (any, error) {
				return a.client.ListRepositories(ctx)
			}, func(result any) (int, error) {
				repos := result.([]github.Repository)
				w := newTabWriter()
				for _, repo := range repos {
					visibility := "public"
					if repo.Private {
						visibility = "private"
					}
					if repo.Archived {
						visibility += ", archived"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", repo.FullName, visibility, repo.Description)
				}
				return len(repos), w.Flush()
			})
		},
	}
}

// createIssuesCommand lists a repository's issues
func createIssuesCommand() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "issues owner/repo",
		Short: "List a repository's issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}

			return runFetch("issues for "+args[0], func(ctx context.Context, a *app) (any, error) {
				return a.client.ListIssues(ctx, owner, repo, state)
			}, func(result any) (int, error) {
				issues := result.([]github.Issue)
				w := newTabWriter()
				printed := 0
				for _, issue := range issues {
					// The issues endpoint lists pull requests too
					if issue.IsPullRequest() {
						continue
					}
					fmt.Fprintf(w, "#%d\t%s\t%s\t%s\n", issue.Number, issue.State, issue.User.Login, issue.Title)
					printed++
				}
				return printed, w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&state, "state", "s", "open", "Issue state filter (open, closed, all)")
	return cmd
}

// createPullsCommand lists a repository's pull requests
func createPullsCommand() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:     "prs owner/repo",
		Aliases: []string{"pulls"},
		Short:   "List a repository's pull requests",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}

			return runFetch("pull requests for "+args[0], func(ctx context.Context, a *app) (any, error) {
				return a.client.ListPullRequests(ctx, owner, repo, state)
			}, func(result any) (int, error) {
				pulls := result.([]github.PullRequest)
				w := newTabWriter()
				for _, pr := range pulls {
					marker := string(pr.State)
					if pr.Draft {
						marker = "draft"
					}
					fmt.Fprintf(w, "#%d\t%s\t%s\t%s -> %s\t%s\n", pr.Number, marker, pr.User.Login, pr.Head.Ref, pr.Base.Ref, pr.Title)
				}
				return len(pulls), w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&state, "state", "s", "open", "Pull request state filter (open, closed, all)")
	return cmd
}

// createReviewsCommand lists the reviews on a pull request
func createReviewsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reviews owner/repo number",
		Short: "List the reviews on a pull request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			number, err := parseNumberArg(args[1])
			if err != nil {
				return err
			}

			name := fmt.Sprintf("reviews for %s#%d", args[0], number)
			return runFetch(name, func(ctx context.Context, a *app) (any, error) {
				return a.client.ListReviews(ctx, owner, repo, number)
			}, func(result any) (int, error) {
				reviews := result.([]github.Review)
				w := newTabWriter()
				for _, review := range reviews {
					fmt.Fprintf(w, "%s\t%s\t%s\n", review.User.Login, review.State, review.SubmittedAt.Format("2006-01-02 15:04"))
				}
				return len(reviews), w.Flush()
			})
		},
	}
}

// createRunsCommand lists a repository's workflow runs
func createRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs owner/repo",
		Short: "List a repository's workflow runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}

			return runFetch("workflow runs for "+args[0], func(ctx context.Context, a *app) (any, error) {
				return a.client.ListWorkflowRuns(ctx, owner, repo)
			}, func(result any) (int, error) {
				runs := result.([]github.WorkflowRun)
				w := newTabWriter()
				for _, run := range runs {
					outcome := run.Status
					if run.Conclusion != "" {
						outcome = run.Conclusion
					}
					fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\n", run.RunNumber, run.Name, outcome, run.HeadBranch, run.Event)
				}
				return len(runs), w.Flush()
			})
		},
	}
}

// createDiffCommand prints a pull request's diff
func createDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff owner/repo number",
		Short: "Show a pull request's diff",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			number, err := parseNumberArg(args[1])
			if err != nil {
				return err
			}

			name := fmt.Sprintf("diff for %s#%d", args[0], number)
			return runFetch(name, func(ctx context.Context, a *app) (any, error) {
				return a.client.GetPullRequestDiff(ctx, owner, repo, number)
			}, func(result any) (int, error) {
				fmt.Print(result.(string))
				return 1, nil
			})
		},
	}
}

// createCommentCommand posts a comment on an issue or pull request
func createCommentCommand() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "comment owner/repo number",
		Short: "Comment on an issue or pull request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			number, err := parseNumberArg(args[1])
			if err != nil {
				return err
			}
			if body == "" {
				return fmt.Errorf("comment body must not be empty")
			}

			name := fmt.Sprintf("comment on %s#%d", args[0], number)
			return runFetch(name, func(ctx context.Context, a *app) (any, error) {
				return a.client.CreateIssueComment(ctx, owner, repo, number, body)
			}, func(result any) (int, error) {
				comment := result.(*github.IssueComment)
				fmt.Printf("Comment %d posted.\n", comment.ID)
				return 1, nil
			})
		},
	}
	cmd.Flags().StringVarP(&body, "body", "b", "", "Comment body")
	return cmd
}

// createMergeCommand merges a pull request
func createMergeCommand() *cobra.Command {
	var method string
	var sha string

	cmd := &cobra.Command{
		Use:   "merge owner/repo number",
		Short: "Merge a pull request",
		Long: `Merge a pull request. The --sha flag pins the merge to a specific head
commit: the merge fails if the branch has moved since you reviewed it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			number, err := parseNumberArg(args[1])
			if err != nil {
				return err
			}

			name := fmt.Sprintf("merge %s#%d", args[0], number)
			return runFetch(name, func(ctx context.Context, a *app) (any, error) {
				headSHA := sha
				if headSHA == "" {
					pr, err := a.client.GetPullRequest(ctx, owner, repo, number)
					if err != nil {
						return nil, err
					}
					headSHA = pr.Head.SHA
				}
				return a.client.MergePullRequest(ctx, owner, repo, number, headSHA, method)
			}, func(result any) (int, error) {
				merge := result.(*github.MergeResult)
				if merge.Merged {
					fmt.Printf("Merged as %s.\n", merge.SHA)
				} else {
					fmt.Printf("Not merged: %s\n", merge.Message)
				}
				return 1, nil
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "merge", "Merge method (merge, squash, rebase)")
	cmd.Flags().StringVar(&sha, "sha", "", "Required head SHA (default: current head)")
	return cmd
}

// createInvalidateCommand drops cached entries under a path prefix
func createInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate path",
		Short: "Drop cached responses under a resource path",
		Long: `Drop every cached response whose path starts with the given prefix,
for example /repos/golang/go/issues. The next fetch goes to the network.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.client.Invalidate(args[0])
			fmt.Printf("Invalidated cached responses under %s.\n", args[0])
			return nil
		},
	}
}

// createWhoamiCommand shows the authenticated user
func createWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch("authenticated user", func(ctx context.Context, a *app) (any, error) {
				return a.client.GetUser(ctx)
			}, func(result any) (int, error) {
				user := result.(*github.User)
				if user.Name != "" {
					fmt.Printf("%s (%s)\n", user.Login, user.Name)
				} else {
					fmt.Println(user.Login)
				}
				return 1, nil
			})
		},
	}
}
