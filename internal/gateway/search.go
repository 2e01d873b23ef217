package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/ratelimit"
)

// SearchPullRequests returns the pull requests a user opened in the scope
// during the window.
func (g *GitHubGateway) SearchPullRequests(ctx context.Context, scope Scope, author string, window domain.TimeWindow) ([]domain.PullRequestRecord, error) {
	g.logger.Println("Fetching pull request data using the search API...")
	query := fmt.Sprintf("type:pr author:%s %s created:%s", author, scope.qualifier(), window.SearchRange())
	var records []domain.PullRequestRecord
	err := g.searchIssuePages(ctx, "pull requests", query, func(issue *github.Issue) {
		records = append(records, domain.PullRequestRecord{
			ID:          issue.GetID(),
			Repo:        repoFromIssue(issue),
			AuthorLogin: issue.GetUser().GetLogin(),
			CreatedAt:   issue.GetCreatedAt().Time,
			State:       issue.GetState(),
		})
	})
	if err != nil {
		return nil, err
	}
	g.logger.Printf("Found %d pull requests.", len(records))
	return records, nil
}

// SearchIssues returns the issues a user opened in the scope during the
// window. The search endpoint mixes pull requests into issue results, so
// they are filtered back out.
func (g *GitHubGateway) SearchIssues(ctx context.Context, scope Scope, author string, window domain.TimeWindow) ([]domain.IssueRecord, error) {
	g.logger.Println("Fetching issue data using the search API...")
	query := fmt.Sprintf("type:issue author:%s %s created:%s", author, scope.qualifier(), window.SearchRange())
	var records []domain.IssueRecord
	err := g.searchIssuePages(ctx, "issues", query, func(issue *github.Issue) {
		if issue.IsPullRequest() {
			return
		}
		records = append(records, domain.IssueRecord{
			ID:          issue.GetID(),
			Repo:        repoFromIssue(issue),
			AuthorLogin: issue.GetUser().GetLogin(),
			CreatedAt:   issue.GetCreatedAt().Time,
		})
	})
	if err != nil {
		return nil, err
	}
	g.logger.Printf("Found %d issues.", len(records))
	return records, nil
}

// searchIssuePages walks the issue search results for a query, drawing from
// the search quota rather than the core one.
func (g *GitHubGateway) searchIssuePages(ctx context.Context, unit, query string, visit func(*github.Issue)) error {
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 100}}
	return g.listPages(ctx, ratelimit.Search, unit, func(page int) (*github.Response, error) {
		opts.Page = page
		result, resp, err := g.restClient.Search.Issues(ctx, query, opts)
		if err != nil {
			return resp, err
		}
		for _, issue := range result.Issues {
			visit(issue)
		}
		return resp, nil
	})
}

// reviewSearchQuery finds the pull requests a user reviewed and, for each,
// the reviews that user submitted. Search cannot filter on review
// timestamps, so the window is applied per review after fetching.
type reviewSearchQuery struct {
	Search struct {
		PageInfo struct {
			HasNextPage bool
			EndCursor   githubv4.String
		}
		Edges []struct {
			Node struct {
				Typename    string `graphql:"__typename"`
				PullRequest struct {
					DatabaseID int64
					Repository struct {
						NameWithOwner string
					}
					Reviews struct {
						Nodes []struct {
							DatabaseID int64
							Author     struct {
								Login string
							}
							SubmittedAt githubv4.DateTime
						}
					} `graphql:"reviews(first: 100, states: [COMMENTED, APPROVED, CHANGES_REQUESTED], author: $reviewer)"`
				} `graphql:"... on PullRequest"`
			}
		}
	} `graphql:"search(query: $query, type: ISSUE, first: 50, after: $cursor)"`
}

// FetchReviews returns the reviews a user submitted on the scope's pull
// requests during the window.
func (g *GitHubGateway) FetchReviews(ctx context.Context, scope Scope, reviewer string, window domain.TimeWindow) ([]domain.ReviewRecord, error) {
	g.logger.Println("Fetching review data using the GraphQL API...")
	query := fmt.Sprintf("type:pr reviewed-by:%s %s updated:%s", reviewer, scope.qualifier(), window.SearchRange())
	variables := map[string]interface{}{
		"query":    githubv4.String(query),
		"reviewer": githubv4.String(reviewer),
		"cursor":   (*githubv4.String)(nil),
	}

	const unit = "reviews"
	var records []domain.ReviewRecord
	var prevCursor githubv4.String
	for {
		var q reviewSearchQuery
		err := g.doGraphQL(ctx, unit, func() error {
			q = reviewSearchQuery{}
			return g.graphqlClient.Query(ctx, &q, variables)
		})
		if err != nil {
			return nil, err
		}

		for _, edge := range q.Search.Edges {
			if edge.Node.Typename != "PullRequest" {
				continue
			}
			pr := edge.Node.PullRequest
			repo := repoFromNameWithOwner(pr.Repository.NameWithOwner)
			for _, review := range pr.Reviews.Nodes {
				if !strings.EqualFold(review.Author.Login, reviewer) {
					continue
				}
				if !window.Contains(review.SubmittedAt.Time) {
					continue
				}
				records = append(records, domain.ReviewRecord{
					ID:            review.DatabaseID,
					PullRequestID: pr.DatabaseID,
					Repo:          repo,
					ReviewerLogin: review.Author.Login,
					SubmittedAt:   review.SubmittedAt.Time,
				})
			}
		}

		if !q.Search.PageInfo.HasNextPage {
			break
		}
		cursor := q.Search.PageInfo.EndCursor
		if cursor == prevCursor {
			return nil, &domain.CollectionError{
				Kind:  domain.KindProtocolViolation,
				Unit:  unit,
				Cause: fmt.Errorf("pagination cursor %q repeated", cursor),
			}
		}
		prevCursor = cursor
		variables["cursor"] = githubv4.NewString(cursor)
		g.logger.Println("  Fetching next page of reviews...")
	}
	g.logger.Printf("Found %d reviews.", len(records))
	return records, nil
}

// doGraphQL runs one GraphQL query through the pacer, the core quota and
// the retry policy. The GraphQL transport surfaces failures as opaque
// errors, so they are all treated as retryable.
func (g *GitHubGateway) doGraphQL(ctx context.Context, unit string, call func() error) error {
	return g.retry.Do(ctx, unit, func() error {
		if err := g.pacer.Wait(ctx); err != nil {
			return err
		}
		if err := g.limits.Acquire(ctx, ratelimit.Core); err != nil {
			return err
		}
		if err := call(); err != nil {
			return &domain.CollectionError{Kind: domain.KindTransient, Unit: unit, Cause: err}
		}
		return nil
	})
}

// repoFromIssue recovers the repository from the repository_url field, the
// only repository reference issue search results carry.
func repoFromIssue(issue *github.Issue) domain.RepoRef {
	parts := strings.Split(issue.GetRepositoryURL(), "/")
	if len(parts) < 2 {
		return domain.RepoRef{}
	}
	return domain.RepoRef{Owner: parts[len(parts)-2], Name: parts[len(parts)-1]}
}

func repoFromNameWithOwner(s string) domain.RepoRef {
	owner, name, _ := strings.Cut(s, "/")
	return domain.RepoRef{Owner: owner, Name: name}
}
