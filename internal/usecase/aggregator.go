package usecase

import (
	"sort"
	"time"

	"github.com/soralab/gh-productivity/internal/domain"
)

// Aggregate merges the collected record sets into the final result. It is
// a pure function: identical inputs always produce an identical result,
// with days sorted ascending and repositories sorted by name, so output
// never depends on fetch completion order.
//
// The repos argument carries the discovery metadata (default branch,
// private and fork flags); repositories seen only through search results
// keep a bare owner/name reference.
func Aggregate(
	window domain.TimeWindow,
	repos []domain.RepoRef,
	commits []domain.CommitRecord,
	prs []domain.PullRequestRecord,
	reviews []domain.ReviewRecord,
	issues []domain.IssueRecord,
	skipped []domain.SkippedRepo,
) *domain.AggregateResult {
	known := make(map[string]domain.RepoRef, len(repos))
	for _, r := range repos {
		known[r.FullName()] = r
	}

	perRepo := make(map[string]*domain.Metrics)
	perDay := make(map[string]*domain.Metrics)
	refs := make(map[string]domain.RepoRef)

	touch := func(ref domain.RepoRef, day string) (repo, date *domain.Metrics) {
		name := ref.FullName()
		if enriched, ok := known[name]; ok {
			ref = enriched
		}
		if _, ok := refs[name]; !ok {
			refs[name] = ref
		}
		rm := perRepo[name]
		if rm == nil {
			rm = &domain.Metrics{}
			perRepo[name] = rm
		}
		dm := perDay[day]
		if dm == nil {
			dm = &domain.Metrics{}
			perDay[day] = dm
		}
		return rm, dm
	}

	for _, commit := range commits {
		rm, dm := touch(commit.Repo, dayOf(commit.Timestamp))
		rm.Commits++
		rm.Additions += commit.Additions
		rm.Deletions += commit.Deletions
		dm.Commits++
		dm.Additions += commit.Additions
		dm.Deletions += commit.Deletions
	}
	for _, pr := range prs {
		rm, dm := touch(pr.Repo, dayOf(pr.CreatedAt))
		rm.PullRequests++
		dm.PullRequests++
	}
	for _, review := range reviews {
		rm, dm := touch(review.Repo, dayOf(review.SubmittedAt))
		rm.Reviews++
		dm.Reviews++
	}
	for _, issue := range issues {
		rm, dm := touch(issue.Repo, dayOf(issue.CreatedAt))
		rm.Issues++
		dm.Issues++
	}

	result := &domain.AggregateResult{Window: window}

	names := make([]string, 0, len(perRepo))
	for name := range perRepo {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result.PerRepo = append(result.PerRepo, domain.RepoActivity{Repo: refs[name], Counts: *perRepo[name]})
	}

	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		bucket := domain.DailyBucket{Date: day, Counts: *perDay[day]}
		result.PerDay = append(result.PerDay, bucket)
		result.Totals.Add(bucket.Counts)
	}

	result.Skipped = append(result.Skipped, skipped...)
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Repo < result.Skipped[j].Repo
	})

	return result
}

// dayOf buckets a timestamp onto its UTC calendar day.
func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
