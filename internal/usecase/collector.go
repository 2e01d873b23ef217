// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/gateway"
	"github.com/soralab/gh-productivity/internal/repofilter"
)

// Concurrency holds the two fan-out ceilings of a run: parallel branch
// fetches and parallel repository units. They are tuned separately because
// branch fan-out and repo fan-out draw on the shared quota differently.
type Concurrency struct {
	Branches int
	Repos    int
}

// DefaultConcurrency returns the ceilings used when none are configured.
func DefaultConcurrency() Concurrency {
	return Concurrency{Branches: 3, Repos: 5}
}

func (cc Concurrency) orDefault() Concurrency {
	def := DefaultConcurrency()
	if cc.Branches <= 0 {
		cc.Branches = def.Branches
	}
	if cc.Repos <= 0 {
		cc.Repos = def.Repos
	}
	return cc
}

// Config describes one collection run.
type Config struct {
	Username     string
	Organization string
	Personal     bool
	Window       domain.TimeWindow
	Metrics      domain.MetricSet
	Ignore       *repofilter.Filter
	Concurrency  Concurrency
}

func (c Config) validate() error {
	fail := func(msg string) error {
		return &domain.CollectionError{Kind: domain.KindConfiguration, Cause: errors.New(msg)}
	}
	switch {
	case c.Username == "":
		return fail("username is required")
	case !c.Personal && c.Organization == "":
		return fail("an organization is required unless personal mode is enabled")
	case c.Personal && c.Organization != "":
		return fail("personal mode and an organization are mutually exclusive")
	case c.Window.Start.IsZero() || c.Window.End.IsZero():
		return fail("time window is required")
	}
	return nil
}

// Progress receives coarse step updates from a run so a display layer can
// render them. The collector itself never prints to the terminal.
type Progress interface {
	Begin(stage string, total int)
	Advance(unit string)
}

type nopProgress struct{}

func (nopProgress) Begin(string, int) {}
func (nopProgress) Advance(string)    {}

// Collector drives a collection run from repository discovery to the
// aggregated result.
type Collector struct {
	fetcher  gateway.Fetcher
	logger   *log.Logger
	progress Progress
}

// NewCollector creates a new Collector instance.
func NewCollector(fetcher gateway.Fetcher, logger *log.Logger) *Collector {
	return &Collector{
		fetcher:  fetcher,
		logger:   logger,
		progress: nopProgress{},
	}
}

// SetProgress attaches a progress sink for display layers.
func (c *Collector) SetProgress(p Progress) {
	if p != nil {
		c.progress = p
	}
}

// Run executes the collection pipeline: discover repositories, filter
// them, fan out per metric category, then aggregate. A failed repository
// or category is recorded on the result and the run keeps going; only a
// configuration problem, a failed repository discovery, or cancellation
// abort the whole run.
func (c *Collector) Run(ctx context.Context, cfg Config) (*domain.AggregateResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Concurrency = cfg.Concurrency.orDefault()

	repos, err := c.listRepos(ctx, cfg)
	if err != nil {
		return nil, err
	}
	kept := c.filterRepos(cfg, repos)

	scope := gateway.Scope{Org: cfg.Organization}
	if cfg.Personal {
		scope = gateway.Scope{User: cfg.Username}
	}

	run := &runState{}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return c.collectCommits(egCtx, cfg, kept, run)
	})

	if cfg.Metrics.PullRequests {
		eg.Go(func() error {
			prs, err := c.fetcher.SearchPullRequests(egCtx, scope, cfg.Username, cfg.Window)
			if err != nil {
				return c.failUnit(run, "pull-requests", err)
			}
			for _, pr := range prs {
				if cfg.Ignore.Matches(pr.Repo.Name) {
					continue
				}
				run.addPullRequest(pr)
			}
			return nil
		})
	}

	if cfg.Metrics.Reviews {
		eg.Go(func() error {
			reviews, err := c.fetcher.FetchReviews(egCtx, scope, cfg.Username, cfg.Window)
			if err != nil {
				return c.failUnit(run, "reviews", err)
			}
			for _, review := range reviews {
				if cfg.Ignore.Matches(review.Repo.Name) {
					continue
				}
				run.addReview(review)
			}
			return nil
		})
	}

	if cfg.Metrics.Issues {
		eg.Go(func() error {
			issues, err := c.fetcher.SearchIssues(egCtx, scope, cfg.Username, cfg.Window)
			if err != nil {
				return c.failUnit(run, "issues", err)
			}
			for _, issue := range issues {
				if cfg.Ignore.Matches(issue.Repo.Name) {
					continue
				}
				run.addIssue(issue)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	c.logger.Printf("Collection finished: %d commits, %d pull requests, %d reviews, %d issues, %d skipped units.",
		len(run.commits), len(run.prs), len(run.reviews), len(run.issues), len(run.skipped))

	return Aggregate(cfg.Window, kept, run.commits, run.prs, run.reviews, run.issues, run.skipped), nil
}

func (c *Collector) listRepos(ctx context.Context, cfg Config) ([]domain.RepoRef, error) {
	if cfg.Personal {
		return c.fetcher.ListUserRepos(ctx, cfg.Username)
	}
	return c.fetcher.ListOrgRepos(ctx, cfg.Organization)
}

// filterRepos applies the ignore patterns before any further fetching, so
// an ignored repository costs no quota at all.
func (c *Collector) filterRepos(cfg Config, repos []domain.RepoRef) []domain.RepoRef {
	if cfg.Ignore.Len() == 0 {
		return repos
	}
	kept := make([]domain.RepoRef, 0, len(repos))
	for _, repo := range repos {
		if cfg.Ignore.Matches(repo.Name) {
			c.logger.Printf("Ignoring %s (matched ignore pattern).", repo.FullName())
			continue
		}
		kept = append(kept, repo)
	}
	c.logger.Printf("Collecting from %d of %d repositories.", len(kept), len(repos))
	return kept
}

// collectCommits gathers the window's commits repository by repository.
// Branch enumeration runs as its own fan-out stage first, because it is
// the first multiplier of request volume and decides which repositories
// stay in the run at all.
func (c *Collector) collectCommits(ctx context.Context, cfg Config, repos []domain.RepoRef, run *runState) error {
	branchesByRepo, err := c.enumerateBranches(ctx, cfg, repos, run)
	if err != nil {
		return err
	}

	c.progress.Begin("commits", len(branchesByRepo))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Concurrency.Repos)
	for _, repo := range repos {
		branches, ok := branchesByRepo[repo.FullName()]
		if !ok {
			continue // dropped during branch enumeration
		}
		repo := repo
		eg.Go(func() error {
			defer c.progress.Advance(repo.FullName())
			records, err := c.collectRepoCommits(egCtx, cfg, repo, branches)
			if err != nil {
				return c.failUnit(run, repo.FullName(), err)
			}
			run.addCommits(records)
			return nil
		})
	}
	return eg.Wait()
}

// enumerateBranches resolves the branch set to scan for each repository.
// A permission or existence failure drops the repository here, before any
// commit fetch; a transient failure that survived its retries falls back
// to the default branch so the repository still contributes.
func (c *Collector) enumerateBranches(ctx context.Context, cfg Config, repos []domain.RepoRef, run *runState) (map[string][]string, error) {
	c.progress.Begin("branches", len(repos))

	var mu sync.Mutex
	byRepo := make(map[string][]string, len(repos))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Concurrency.Branches)
	for _, repo := range repos {
		repo := repo
		eg.Go(func() error {
			defer c.progress.Advance(repo.FullName())
			branches, err := c.fetcher.ListBranches(egCtx, repo)
			if err != nil {
				if isCanceled(err) {
					return err
				}
				switch domain.KindOf(err) {
				case domain.KindForbidden, domain.KindNotFound:
					return c.failUnit(run, repo.FullName(), err)
				}
				c.logger.Printf("Branch listing for %s failed (%v), falling back to %s.",
					repo.FullName(), err, repo.DefaultBranch)
				branches = nil
			}
			mu.Lock()
			byRepo[repo.FullName()] = scanBranches(repo, branches)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return byRepo, nil
}

// scanBranches orders a repository's branch set for scanning. The default
// branch always leads and is never missing: a repository with any commits
// at all has one.
func scanBranches(repo domain.RepoRef, branches []string) []string {
	ordered := make([]string, 0, len(branches)+1)
	if repo.DefaultBranch != "" {
		ordered = append(ordered, repo.DefaultBranch)
	}
	for _, b := range branches {
		if b == repo.DefaultBranch {
			continue
		}
		ordered = append(ordered, b)
	}
	if len(ordered) == 0 {
		ordered = append(ordered, repo.DefaultBranch)
	}
	return ordered
}

// collectRepoCommits fans out over one repository's branches, merges the
// per-branch results by sha and optionally prices each distinct commit's
// line changes. Stats are fetched only after dedup: they are the most
// expensive call, and a duplicate commit's stats would be thrown away.
func (c *Collector) collectRepoCommits(ctx context.Context, cfg Config, repo domain.RepoRef, branches []string) ([]domain.CommitRecord, error) {
	var mu sync.Mutex
	bySHA := make(map[string]domain.CommitRecord)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Concurrency.Branches)
	for _, branch := range branches {
		branch := branch
		eg.Go(func() error {
			records, err := c.fetcher.ListBranchCommits(egCtx, repo, branch, cfg.Username, cfg.Window)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, rec := range records {
				if !keepCommit(cfg, rec) {
					continue
				}
				if _, seen := bySHA[rec.SHA]; !seen {
					bySHA[rec.SHA] = rec
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	distinct := make([]domain.CommitRecord, 0, len(bySHA))
	for _, rec := range bySHA {
		distinct = append(distinct, rec)
	}
	sort.Slice(distinct, func(i, j int) bool {
		if !distinct[i].Timestamp.Equal(distinct[j].Timestamp) {
			return distinct[i].Timestamp.Before(distinct[j].Timestamp)
		}
		return distinct[i].SHA < distinct[j].SHA
	})

	if cfg.Metrics.Lines {
		if err := c.fetchCommitStats(ctx, cfg, repo, distinct); err != nil {
			return nil, err
		}
	}
	return distinct, nil
}

// fetchCommitStats prices the line changes of the deduplicated commit set.
// A single commit whose stats cannot be fetched keeps its zero counts
// rather than sinking the whole repository.
func (c *Collector) fetchCommitStats(ctx context.Context, cfg Config, repo domain.RepoRef, commits []domain.CommitRecord) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Concurrency.Repos)
	for i := range commits {
		i := i
		eg.Go(func() error {
			additions, deletions, err := c.fetcher.FetchCommitStats(egCtx, repo, commits[i].SHA)
			if err != nil {
				if isCanceled(err) {
					return err
				}
				c.logger.Printf("Stats for %s@%s unavailable: %v", repo.FullName(), commits[i].SHA, err)
				return nil
			}
			commits[i].Additions = additions
			commits[i].Deletions = deletions
			return nil
		})
	}
	return eg.Wait()
}

// keepCommit re-applies the author and window filters client-side. The
// listing filters server-side already, but fallback branches and mirrored
// commits can leak through. An empty author login means the server matched
// the commit through an email with no linked account, which still counts.
func keepCommit(cfg Config, rec domain.CommitRecord) bool {
	if rec.AuthorLogin != "" && !strings.EqualFold(rec.AuthorLogin, cfg.Username) {
		return false
	}
	return cfg.Window.Contains(rec.Timestamp)
}

// failUnit records a unit failure and keeps the run going, unless the run
// itself is being canceled.
func (c *Collector) failUnit(run *runState, unit string, err error) error {
	if isCanceled(err) {
		return err
	}
	c.logger.Printf("Skipping %s: %v", unit, err)
	run.addSkipped(domain.SkippedRepo{Repo: unit, Reason: reasonFor(err)})
	return nil
}

// reasonFor condenses a unit failure into the reason shown on the final
// report.
func reasonFor(err error) string {
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return err.Error()
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// runState accumulates the results of the concurrent phase. Units only
// ever contribute complete results, so aggregation never sees a
// half-collected repository.
type runState struct {
	mu      sync.Mutex
	commits []domain.CommitRecord
	prs     []domain.PullRequestRecord
	reviews []domain.ReviewRecord
	issues  []domain.IssueRecord
	skipped []domain.SkippedRepo
}

func (r *runState) addCommits(records []domain.CommitRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, records...)
}

func (r *runState) addPullRequest(pr domain.PullRequestRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prs = append(r.prs, pr)
}

func (r *runState) addReview(review domain.ReviewRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = append(r.reviews, review)
}

func (r *runState) addIssue(issue domain.IssueRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues = append(r.issues, issue)
}

func (r *runState) addSkipped(entry domain.SkippedRepo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, entry)
}
