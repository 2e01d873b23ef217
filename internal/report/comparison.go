package report

import (
	"time"

	"github.com/soralab/gh-productivity/internal/domain"
)

// MetricDelta holds one metric's organization and personal values and their
// difference (personal minus organization).
type MetricDelta struct {
	Organization int `json:"organization"`
	Personal     int `json:"personal"`
	Difference   int `json:"difference"`
}

func delta(org, personal int) MetricDelta {
	return MetricDelta{Organization: org, Personal: personal, Difference: personal - org}
}

// Distribution splits the combined commit total between the two scopes.
type Distribution struct {
	OrgPercent      float64 `json:"org_percentage"`
	PersonalPercent float64 `json:"personal_percentage"`
	OrgCommits      int     `json:"org_commits"`
	PersonalCommits int     `json:"personal_commits"`
	TotalCommits    int     `json:"total_commits"`
}

// Comparison is the result of collecting the same user and window twice,
// once per scope, and diffing the aggregates. It carries both underlying
// results so the persisted file stays self-contained.
type Comparison struct {
	User         string            `json:"username"`
	Organization string            `json:"organization"`
	Window       domain.TimeWindow `json:"window"`

	Commits      MetricDelta `json:"commits"`
	PullRequests MetricDelta `json:"pull_requests"`
	Reviews      MetricDelta `json:"code_reviews"`
	Issues       MetricDelta `json:"issues"`
	Additions    MetricDelta `json:"additions"`
	Deletions    MetricDelta `json:"deletions"`
	ActiveRepos  MetricDelta `json:"active_repositories"`

	Distribution Distribution `json:"distribution"`

	Org      *domain.AggregateResult `json:"organization_data"`
	Personal *domain.AggregateResult `json:"personal_data"`
}

// Compare diffs an organization run against a personal run over the same
// window.
func Compare(user, organization string, org, personal *domain.AggregateResult) *Comparison {
	cmp := &Comparison{
		User:         user,
		Organization: organization,
		Window:       org.Window,

		Commits:      delta(org.Totals.Commits, personal.Totals.Commits),
		PullRequests: delta(org.Totals.PullRequests, personal.Totals.PullRequests),
		Reviews:      delta(org.Totals.Reviews, personal.Totals.Reviews),
		Issues:       delta(org.Totals.Issues, personal.Totals.Issues),
		Additions:    delta(org.Totals.Additions, personal.Totals.Additions),
		Deletions:    delta(org.Totals.Deletions, personal.Totals.Deletions),
		ActiveRepos:  delta(len(org.PerRepo), len(personal.PerRepo)),

		Org:      org,
		Personal: personal,
	}

	total := org.Totals.Commits + personal.Totals.Commits
	cmp.Distribution = Distribution{
		OrgCommits:      org.Totals.Commits,
		PersonalCommits: personal.Totals.Commits,
		TotalCommits:    total,
	}
	if total > 0 {
		cmp.Distribution.OrgPercent = float64(org.Totals.Commits) / float64(total) * 100
		cmp.Distribution.PersonalPercent = float64(personal.Totals.Commits) / float64(total) * 100
	}
	return cmp
}

// RatioSummary is the condensed comparison document persisted alongside the
// full comparison data.
type RatioSummary struct {
	User      string            `json:"username"`
	Timestamp time.Time         `json:"timestamp"`
	Window    domain.TimeWindow `json:"window"`
	Ratios    Distribution      `json:"ratios"`
}

// RatioSummary condenses the comparison into its headline ratios.
func (c *Comparison) RatioSummary(now time.Time) RatioSummary {
	return RatioSummary{
		User:      c.User,
		Timestamp: now.UTC(),
		Window:    c.Window,
		Ratios:    c.Distribution,
	}
}
