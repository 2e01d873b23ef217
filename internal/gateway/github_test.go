package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/ratelimit"
	"github.com/soralab/gh-productivity/internal/retry"
)

// setupTestGateway creates a GitHubGateway that communicates with a mock
// HTTP server. The retry policy is tightened so failure tests finish in
// milliseconds, and the pacer is opened up so tests are not throttled.
func setupTestGateway(t *testing.T, handler http.Handler) (*GitHubGateway, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	graphqlClient := githubv4.NewEnterpriseClient(server.URL, server.Client())
	logger := log.New(io.Discard, "", 0)

	gateway := &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		limits:        ratelimit.NewTracker(logger),
		retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
		pacer:  rate.NewLimiter(rate.Inf, 0),
		logger: logger,
	}
	return gateway, server
}

func testWindow() domain.TimeWindow {
	return domain.TimeWindow{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC),
	}
}

func TestGitHubGateway_ListOrgRepos(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/orgs/acme/repos")
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", `<https://api.github.com/orgs/acme/repos?page=2>; rel="next"`)
			fmt.Fprint(w, `[
				{"name": "widgets", "owner": {"login": "acme"}, "default_branch": "main"},
				{"name": "private-x", "owner": {"login": "acme"}, "private": true, "default_branch": "master"}
			]`)
		case "2":
			fmt.Fprint(w, `[{"name": "forked-lib", "owner": {"login": "acme"}, "fork": true, "default_branch": "main"}]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	repos, err := gateway.ListOrgRepos(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, []domain.RepoRef{
		{Owner: "acme", Name: "widgets", DefaultBranch: "main"},
		{Owner: "acme", Name: "private-x", IsPrivate: true, DefaultBranch: "master"},
		{Owner: "acme", Name: "forked-lib", IsFork: true, DefaultBranch: "main"},
	}, repos)
}

func TestGitHubGateway_ListOrgReposStuckPagination(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		// The next pointer never advances past the page being served.
		w.Header().Set("Link", `<https://api.github.com/orgs/acme/repos?page=1>; rel="next"`)
		fmt.Fprint(w, `[{"name": "widgets", "owner": {"login": "acme"}}]`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	_, err := gateway.ListOrgRepos(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, domain.KindProtocolViolation, domain.KindOf(err))
}

func TestGitHubGateway_ListUserRepos(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/users/octo/repos")
		fmt.Fprint(w, `[
			{"name": "dotfiles", "owner": {"login": "octo"}, "default_branch": "main"},
			{"name": "shared-project", "owner": {"login": "someone-else"}, "default_branch": "main"}
		]`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	repos, err := gateway.ListUserRepos(context.Background(), "octo")
	require.NoError(t, err)

	require.Len(t, repos, 1, "repositories owned by others are dropped")
	assert.Equal(t, "octo/dotfiles", repos[0].FullName())
}

func TestGitHubGateway_ListBranches(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/repos/acme/widgets/branches")
		fmt.Fprint(w, `[{"name": "main"}, {"name": "develop"}, {"name": "release-1.2"}]`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	branches, err := gateway.ListBranches(context.Background(), domain.RepoRef{Owner: "acme", Name: "widgets"})
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "develop", "release-1.2"}, branches)
}

func TestGitHubGateway_ListBranchesForbidden(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "Resource not accessible by integration"}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	_, err := gateway.ListBranches(context.Background(), domain.RepoRef{Owner: "acme", Name: "private-x"})
	require.Error(t, err)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestGitHubGateway_ListBranchCommits(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/repos/acme/widgets/commits")
		q := r.URL.Query()
		assert.Equal(t, "octo", q.Get("author"))
		assert.Equal(t, "develop", q.Get("sha"))
		assert.Contains(t, q.Get("since"), "2024-03-01T00:00:00")
		assert.Contains(t, q.Get("until"), "2024-03-10T23:59:59")
		fmt.Fprint(w, `[
			{"sha": "aaa111", "author": {"login": "octo"}, "commit": {"author": {"date": "2024-03-05T10:00:00Z"}}},
			{"sha": "bbb222", "author": {"login": "octo"}, "commit": {"author": {"date": "2024-03-06T11:30:00Z"}}}
		]`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}
	commits, err := gateway.ListBranchCommits(context.Background(), repo, "develop", "octo", testWindow())
	require.NoError(t, err)

	assert.Equal(t, []domain.CommitRecord{
		{SHA: "aaa111", Repo: repo, Branch: "develop", AuthorLogin: "octo", Timestamp: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{SHA: "bbb222", Repo: repo, Branch: "develop", AuthorLogin: "octo", Timestamp: time.Date(2024, 3, 6, 11, 30, 0, 0, time.UTC)},
	}, commits)
}

func TestGitHubGateway_ListBranchCommitsEmptyRepo(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "Git Repository is empty."}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	repo := domain.RepoRef{Owner: "acme", Name: "empty"}
	commits, err := gateway.ListBranchCommits(context.Background(), repo, "main", "octo", testWindow())
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestGitHubGateway_RetriesServerErrors(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message": "Bad Gateway"}`)
			return
		}
		fmt.Fprint(w, `[{"sha": "aaa111", "author": {"login": "octo"}, "commit": {"author": {"date": "2024-03-05T10:00:00Z"}}}]`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	repo := domain.RepoRef{Owner: "acme", Name: "widgets"}
	commits, err := gateway.ListBranchCommits(context.Background(), repo, "main", "octo", testWindow())
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "first attempt fails, second succeeds")
	assert.Len(t, commits, 1)
}

func TestGitHubGateway_DoesNotRetryForbidden(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "Must have push access"}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	repo := domain.RepoRef{Owner: "acme", Name: "private-x"}
	_, err := gateway.ListBranchCommits(context.Background(), repo, "main", "octo", testWindow())
	require.Error(t, err)

	assert.Equal(t, 1, calls, "permission failures are not retried")
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestGitHubGateway_FetchCommitStats(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/repos/acme/widgets/commits/aaa111")
		fmt.Fprint(w, `{"sha": "aaa111", "stats": {"additions": 42, "deletions": 7, "total": 49}}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	additions, deletions, err := gateway.FetchCommitStats(context.Background(), domain.RepoRef{Owner: "acme", Name: "widgets"}, "aaa111")
	require.NoError(t, err)
	assert.Equal(t, 42, additions)
	assert.Equal(t, 7, deletions)
}

func TestGitHubGateway_TracksRateHeaders(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute)
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4000")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		fmt.Fprint(w, `[{"name": "main"}]`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	_, err := gateway.ListBranches(context.Background(), domain.RepoRef{Owner: "acme", Name: "widgets"})
	require.NoError(t, err)

	assert.Equal(t, 4000, gateway.limits.Remaining(ratelimit.Core))
}

func TestGitHubGateway_SearchPullRequests(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/search/issues")
		q := r.URL.Query().Get("q")
		assert.Contains(t, q, "type:pr")
		assert.Contains(t, q, "author:octo")
		assert.Contains(t, q, "org:acme")
		assert.Contains(t, q, "created:2024-03-01..2024-03-10")
		fmt.Fprint(w, `{"total_count": 1, "items": [
			{"id": 9001, "state": "open", "user": {"login": "octo"}, "created_at": "2024-03-04T09:00:00Z",
			 "repository_url": "https://api.github.com/repos/acme/widgets"}
		]}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	prs, err := gateway.SearchPullRequests(context.Background(), Scope{Org: "acme"}, "octo", testWindow())
	require.NoError(t, err)

	assert.Equal(t, []domain.PullRequestRecord{
		{
			ID:          9001,
			Repo:        domain.RepoRef{Owner: "acme", Name: "widgets"},
			AuthorLogin: "octo",
			CreatedAt:   time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			State:       "open",
		},
	}, prs)
}

func TestGitHubGateway_SearchIssuesSkipsPullRequests(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		assert.Contains(t, q, "type:issue")
		fmt.Fprint(w, `{"total_count": 2, "items": [
			{"id": 7001, "user": {"login": "octo"}, "created_at": "2024-03-02T08:00:00Z",
			 "repository_url": "https://api.github.com/repos/acme/widgets"},
			{"id": 7002, "user": {"login": "octo"}, "created_at": "2024-03-03T08:00:00Z",
			 "repository_url": "https://api.github.com/repos/acme/widgets",
			 "pull_request": {"url": "https://api.github.com/repos/acme/widgets/pulls/12"}}
		]}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	issues, err := gateway.SearchIssues(context.Background(), Scope{Org: "acme"}, "octo", testWindow())
	require.NoError(t, err)

	require.Len(t, issues, 1, "search mixes PRs into issue results")
	assert.Equal(t, int64(7001), issues[0].ID)
}

func TestGitHubGateway_FetchReviews(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "reviewed-by:octo")
		assert.Contains(t, string(body), "org:acme")

		fmt.Fprint(w, `{"data": {"search": {
			"pageInfo": {"hasNextPage": false, "endCursor": ""},
			"edges": [{"node": {
				"__typename": "PullRequest",
				"databaseId": 9001,
				"repository": {"nameWithOwner": "acme/widgets"},
				"reviews": {"nodes": [
					{"databaseId": 5001, "author": {"login": "octo"}, "submittedAt": "2024-03-05T10:00:00Z"},
					{"databaseId": 5002, "author": {"login": "luna"}, "submittedAt": "2024-03-05T11:00:00Z"},
					{"databaseId": 5003, "author": {"login": "octo"}, "submittedAt": "2024-04-01T09:00:00Z"}
				]}
			}}]
		}}}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	reviews, err := gateway.FetchReviews(context.Background(), Scope{Org: "acme"}, "octo", testWindow())
	require.NoError(t, err)

	// The other author's review and the one outside the window are dropped.
	assert.Equal(t, []domain.ReviewRecord{
		{
			ID:            5001,
			PullRequestID: 9001,
			Repo:          domain.RepoRef{Owner: "acme", Name: "widgets"},
			ReviewerLogin: "octo",
			SubmittedAt:   time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		},
	}, reviews)
}

func TestGitHubGateway_FetchReviewsStuckCursor(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"search": {
			"pageInfo": {"hasNextPage": true, "endCursor": "Y3Vyc29y"},
			"edges": []
		}}}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	_, err := gateway.FetchReviews(context.Background(), Scope{Org: "acme"}, "octo", testWindow())
	require.Error(t, err)
	assert.Equal(t, domain.KindProtocolViolation, domain.KindOf(err))
}

func TestGitHubGateway_CheckAuth(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/user")
		fmt.Fprint(w, `{"login": "octo"}`)
	}
	gateway, _ := setupTestGateway(t, http.HandlerFunc(handler))

	login, err := gateway.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octo", login)
}

func TestWrapAPIError(t *testing.T) {
	retryAfter := 45 * time.Second

	tests := []struct {
		name     string
		err      error
		wantKind domain.ErrorKind
	}{
		{
			name: "primary rate limit",
			err: &github.RateLimitError{
				Rate: github.Rate{Limit: 5000, Remaining: 0, Reset: github.Timestamp{Time: time.Now().Add(20 * time.Minute)}},
			},
			wantKind: domain.KindRateLimited,
		},
		{
			name:     "secondary rate limit",
			err:      &github.AbuseRateLimitError{RetryAfter: &retryAfter},
			wantKind: domain.KindRateLimited,
		},
		{
			name:     "forbidden",
			err:      &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusForbidden}},
			wantKind: domain.KindForbidden,
		},
		{
			name:     "not found",
			err:      &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}},
			wantKind: domain.KindNotFound,
		},
		{
			name:     "server error",
			err:      &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
			wantKind: domain.KindTransient,
		},
		{
			name:     "network failure",
			err:      errors.New("read: connection reset by peer"),
			wantKind: domain.KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapAPIError("acme/widgets", tt.err)
			assert.Equal(t, tt.wantKind, domain.KindOf(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestWrapAPIErrorUnclassified(t *testing.T) {
	err := wrapAPIError("acme/widgets", &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKind(""), domain.KindOf(err), "validation failures propagate untyped")
	assert.False(t, domain.IsTransient(err))
}

func TestWrapAPIErrorSecondaryHint(t *testing.T) {
	retryAfter := 30 * time.Second
	err := wrapAPIError("acme/widgets", &github.AbuseRateLimitError{RetryAfter: &retryAfter})

	hint, ok := domain.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, hint)
}
