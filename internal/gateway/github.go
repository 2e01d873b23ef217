// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/ratelimit"
	"github.com/soralab/gh-productivity/internal/retry"
)

// Scope narrows collection to an organization's repositories or to the
// repositories a user owns.
type Scope struct {
	Org  string
	User string
}

func (s Scope) qualifier() string {
	if s.Org != "" {
		return "org:" + s.Org
	}
	return "user:" + s.User
}

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	ListOrgRepos(ctx context.Context, org string) ([]domain.RepoRef, error)
	ListUserRepos(ctx context.Context, user string) ([]domain.RepoRef, error)
	ListBranches(ctx context.Context, repo domain.RepoRef) ([]string, error)
	ListBranchCommits(ctx context.Context, repo domain.RepoRef, branch, author string, window domain.TimeWindow) ([]domain.CommitRecord, error)
	FetchCommitStats(ctx context.Context, repo domain.RepoRef, sha string) (additions, deletions int, err error)
	SearchPullRequests(ctx context.Context, scope Scope, author string, window domain.TimeWindow) ([]domain.PullRequestRecord, error)
	SearchIssues(ctx context.Context, scope Scope, author string, window domain.TimeWindow) ([]domain.IssueRecord, error)
	FetchReviews(ctx context.Context, scope Scope, reviewer string, window domain.TimeWindow) ([]domain.ReviewRecord, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	limits        *ratelimit.Tracker
	retry         retry.Policy
	pacer         *rate.Limiter
	logger        *log.Logger
}

// requestsPerSecond paces outbound calls below the secondary limit
// thresholds; burstSize lets a short page burst through unthrottled.
const (
	requestsPerSecond = 8
	burstSize         = 4
)

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// The REST and GraphQL clients share one authenticating transport, which also
// carries the secondary rate limit waiter so Retry-After sleeps happen below
// the retry policy.
func NewGitHubGateway(token string, logger *log.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		limits:        ratelimit.NewTracker(logger),
		retry:         retry.Default(logger),
		pacer:         rate.NewLimiter(requestsPerSecond, burstSize),
		logger:        logger,
	}, nil
}

// CheckAuth verifies the token by fetching the authenticated user and
// returns their login.
func (g *GitHubGateway) CheckAuth(ctx context.Context) (string, error) {
	var login string
	err := g.doRest(ctx, ratelimit.Core, "authentication", func() (*github.Response, error) {
		user, resp, err := g.restClient.Users.Get(ctx, "")
		if err != nil {
			return resp, err
		}
		login = user.GetLogin()
		return resp, nil
	})
	if err != nil {
		return "", err
	}
	return login, nil
}

// ListOrgRepos returns every repository of an organization, including
// private ones the token can see.
func (g *GitHubGateway) ListOrgRepos(ctx context.Context, org string) ([]domain.RepoRef, error) {
	g.logger.Printf("Fetching repository list for organization %s...", org)
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var refs []domain.RepoRef
	err := g.listPages(ctx, ratelimit.Core, "org:"+org, func(page int) (*github.Response, error) {
		opts.Page = page
		repos, resp, err := g.restClient.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return resp, err
		}
		for _, r := range repos {
			refs = append(refs, repoRef(r))
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Printf("Found %d repositories in %s.", len(refs), org)
	return refs, nil
}

// ListUserRepos returns the repositories a user owns. The listing endpoint
// also surfaces repositories the user merely collaborates on, so results
// are filtered down to the user's own.
func (g *GitHubGateway) ListUserRepos(ctx context.Context, user string) ([]domain.RepoRef, error) {
	g.logger.Printf("Fetching repository list for user %s...", user)
	opts := &github.RepositoryListByUserOptions{
		Type:        "all",
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var refs []domain.RepoRef
	err := g.listPages(ctx, ratelimit.Core, "user:"+user, func(page int) (*github.Response, error) {
		opts.Page = page
		repos, resp, err := g.restClient.Repositories.ListByUser(ctx, user, opts)
		if err != nil {
			return resp, err
		}
		for _, r := range repos {
			if !strings.EqualFold(r.GetOwner().GetLogin(), user) {
				continue
			}
			refs = append(refs, repoRef(r))
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Printf("Found %d repositories owned by %s.", len(refs), user)
	return refs, nil
}

// ListBranches returns the branch names of a repository.
func (g *GitHubGateway) ListBranches(ctx context.Context, repo domain.RepoRef) ([]string, error) {
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var names []string
	err := g.listPages(ctx, ratelimit.Core, repo.FullName(), func(page int) (*github.Response, error) {
		opts.Page = page
		branches, resp, err := g.restClient.Repositories.ListBranches(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return resp, err
		}
		for _, b := range branches {
			names = append(names, b.GetName())
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ListBranchCommits returns the commits an author pushed to one branch
// within the window. The author and window filters are applied server-side
// here and re-checked by the caller. An empty repository yields no commits
// rather than an error.
func (g *GitHubGateway) ListBranchCommits(ctx context.Context, repo domain.RepoRef, branch, author string, window domain.TimeWindow) ([]domain.CommitRecord, error) {
	opts := &github.CommitsListOptions{
		SHA:         branch,
		Author:      author,
		Since:       window.Start,
		Until:       window.End,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	unit := fmt.Sprintf("%s@%s", repo.FullName(), branch)
	var records []domain.CommitRecord
	err := g.listPages(ctx, ratelimit.Core, unit, func(page int) (*github.Response, error) {
		opts.Page = page
		commits, resp, err := g.restClient.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return resp, err
		}
		for _, c := range commits {
			records = append(records, commitRecord(repo, branch, c))
		}
		return resp, nil
	})
	if err != nil {
		if isEmptyRepository(err) {
			g.logger.Printf("%s has no commits yet, skipping.", unit)
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// FetchCommitStats returns the line additions and deletions of one commit.
func (g *GitHubGateway) FetchCommitStats(ctx context.Context, repo domain.RepoRef, sha string) (int, int, error) {
	unit := fmt.Sprintf("%s@%s", repo.FullName(), sha)
	var additions, deletions int
	err := g.doRest(ctx, ratelimit.Core, unit, func() (*github.Response, error) {
		commit, resp, err := g.restClient.Repositories.GetCommit(ctx, repo.Owner, repo.Name, sha, nil)
		if err != nil {
			return resp, err
		}
		additions = commit.GetStats().GetAdditions()
		deletions = commit.GetStats().GetDeletions()
		return resp, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return additions, deletions, nil
}

// doRest runs one REST call through the pacer, the quota tracker and the
// retry policy, and feeds the response's rate figures back into the books.
// The response is ingested even on failure: a quota-exhausted 403 is
// exactly the response whose figures matter most.
func (g *GitHubGateway) doRest(ctx context.Context, category ratelimit.Category, unit string, call func() (*github.Response, error)) error {
	return g.retry.Do(ctx, unit, func() error {
		if err := g.pacer.Wait(ctx); err != nil {
			return err
		}
		if err := g.limits.Acquire(ctx, category); err != nil {
			return err
		}
		resp, err := call()
		if resp != nil {
			g.ingestRate(category, resp)
		}
		if err != nil {
			return wrapAPIError(unit, err)
		}
		return nil
	})
}

// ingestRate copies a response's quota figures into the tracker. Responses
// from test servers carry no rate headers and are ignored.
func (g *GitHubGateway) ingestRate(category ratelimit.Category, resp *github.Response) {
	if resp.Rate.Limit == 0 {
		return
	}
	g.limits.Update(category, resp.Rate.Limit, resp.Rate.Remaining, resp.Rate.Reset.Time)
}

func repoRef(r *github.Repository) domain.RepoRef {
	return domain.RepoRef{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		IsPrivate:     r.GetPrivate(),
		IsFork:        r.GetFork(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}

func commitRecord(repo domain.RepoRef, branch string, c *github.RepositoryCommit) domain.CommitRecord {
	return domain.CommitRecord{
		SHA:         c.GetSHA(),
		Repo:        repo,
		Branch:      branch,
		AuthorLogin: c.GetAuthor().GetLogin(),
		Timestamp:   c.GetCommit().GetAuthor().GetDate().Time,
	}
}
