// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// Metrics holds the activity counters tracked for a repository, a calendar
// day, or a whole run.
type Metrics struct {
	Commits      int `json:"commits"`
	PullRequests int `json:"pull_requests"`
	Reviews      int `json:"reviews"`
	Issues       int `json:"issues"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
}

// Add accumulates other into m point-wise.
func (m *Metrics) Add(other Metrics) {
	m.Commits += other.Commits
	m.PullRequests += other.PullRequests
	m.Reviews += other.Reviews
	m.Issues += other.Issues
	m.Additions += other.Additions
	m.Deletions += other.Deletions
}

// MetricSet selects which optional activity categories a run collects
// beyond commits.
type MetricSet struct {
	PullRequests bool
	Reviews      bool
	Issues       bool
	Lines        bool
}

// RepoRef identifies a repository. Identity is (Owner, Name); the remaining
// fields are metadata carried along from the listing endpoint.
type RepoRef struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	IsPrivate     bool   `json:"is_private"`
	IsFork        bool   `json:"is_fork"`
	DefaultBranch string `json:"default_branch"`
}

// FullName returns the owner-qualified repository name.
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// CommitRecord is one commit observed during collection. Identity is SHA:
// the same commit reached via different branches collapses to one record,
// keeping the branch it was first seen on. Additions and deletions stay
// zero unless line stats were requested.
type CommitRecord struct {
	SHA         string    `json:"sha"`
	Repo        RepoRef   `json:"repo"`
	Branch      string    `json:"branch"`
	AuthorLogin string    `json:"author_login"`
	Timestamp   time.Time `json:"timestamp"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
}

// PullRequestRecord is one pull request created by the tracked user.
type PullRequestRecord struct {
	ID          int64     `json:"id"`
	Repo        RepoRef   `json:"repo"`
	AuthorLogin string    `json:"author_login"`
	CreatedAt   time.Time `json:"created_at"`
	State       string    `json:"state"`
}

// ReviewRecord is one review submission by the tracked user.
type ReviewRecord struct {
	ID            int64     `json:"id"`
	PullRequestID int64     `json:"pull_request_id"`
	Repo          RepoRef   `json:"repo"`
	ReviewerLogin string    `json:"reviewer_login"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// IssueRecord is one issue opened by the tracked user.
type IssueRecord struct {
	ID          int64     `json:"id"`
	Repo        RepoRef   `json:"repo"`
	AuthorLogin string    `json:"author_login"`
	CreatedAt   time.Time `json:"created_at"`
}

// DailyBucket is the activity observed on one UTC calendar day.
// Date uses the YYYY-MM-DD form.
type DailyBucket struct {
	Date   string  `json:"date"`
	Counts Metrics `json:"counts"`
}

// RepoActivity is the activity observed in one repository.
type RepoActivity struct {
	Repo   RepoRef `json:"repo"`
	Counts Metrics `json:"counts"`
}

// SkippedRepo records one unit of work that failed permanently during a
// run. The unit is usually a repository; a failed search category is
// recorded under its category name.
type SkippedRepo struct {
	Repo   string `json:"repo"`
	Reason string `json:"reason"`
}

// AggregateResult is the final product of one collection run. It is built
// once, never mutated afterwards, and handed read-only to reporting.
// PerDay is sorted by date ascending, PerRepo and Skipped by name, so
// identical inputs always serialize identically.
type AggregateResult struct {
	Window  TimeWindow     `json:"window"`
	PerRepo []RepoActivity `json:"per_repo"`
	PerDay  []DailyBucket  `json:"per_day"`
	Totals  Metrics        `json:"totals"`
	Skipped []SkippedRepo  `json:"skipped"`
}
