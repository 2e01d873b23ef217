package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"

	"github.com/soralab/gh-productivity/internal/domain"
)

func TestCompare(t *testing.T) {
	org := &domain.AggregateResult{
		Window: weekWindow(),
		PerRepo: []domain.RepoActivity{
			{Repo: domain.RepoRef{Owner: "acme", Name: "alpha"}},
			{Repo: domain.RepoRef{Owner: "acme", Name: "beta"}},
		},
		Totals: domain.Metrics{Commits: 30, PullRequests: 5, Reviews: 4, Issues: 2, Additions: 500, Deletions: 100},
	}
	personal := &domain.AggregateResult{
		Window: weekWindow(),
		PerRepo: []domain.RepoActivity{
			{Repo: domain.RepoRef{Owner: "octo", Name: "dotfiles"}},
		},
		Totals: domain.Metrics{Commits: 10, PullRequests: 1, Additions: 80, Deletions: 20},
	}

	cmp := Compare("octo", "acme", org, personal)

	assert.Equal(t, MetricDelta{Organization: 30, Personal: 10, Difference: -20}, cmp.Commits)
	assert.Equal(t, MetricDelta{Organization: 5, Personal: 1, Difference: -4}, cmp.PullRequests)
	assert.Equal(t, MetricDelta{Organization: 2, Personal: 1, Difference: -1}, cmp.ActiveRepos)
	assert.Equal(t, 40, cmp.Distribution.TotalCommits)
	assert.InDelta(t, 75.0, cmp.Distribution.OrgPercent, 0.01)
	assert.InDelta(t, 25.0, cmp.Distribution.PersonalPercent, 0.01)
	assert.Same(t, org, cmp.Org)
	assert.Same(t, personal, cmp.Personal)
}

func TestCompareNoActivity(t *testing.T) {
	empty := &domain.AggregateResult{Window: weekWindow()}

	cmp := Compare("octo", "acme", empty, empty)

	assert.Equal(t, 0, cmp.Distribution.TotalCommits)
	assert.Zero(t, cmp.Distribution.OrgPercent)
	assert.Zero(t, cmp.Distribution.PersonalPercent)
}

func TestRatioSummary(t *testing.T) {
	org := &domain.AggregateResult{Window: weekWindow(), Totals: domain.Metrics{Commits: 6}}
	personal := &domain.AggregateResult{Window: weekWindow(), Totals: domain.Metrics{Commits: 2}}
	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

	summary := Compare("octo", "acme", org, personal).RatioSummary(now)

	assert.Equal(t, "octo", summary.User)
	assert.Equal(t, now, summary.Timestamp)
	assert.Equal(t, 8, summary.Ratios.TotalCommits)
	assert.InDelta(t, 75.0, summary.Ratios.OrgPercent, 0.01)
}

func TestConsoleRender(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	console := NewConsole(&buf)

	res := weekResult()
	res.Skipped = []domain.SkippedRepo{{Repo: "acme/private-x", Reason: "Forbidden"}}
	info := RunInfo{User: "octo", Organization: "acme", Metrics: domain.MetricSet{PullRequests: true}}

	console.Render(info, res)
	out := buf.String()

	assert.Contains(t, out, "Productivity Report")
	assert.Contains(t, out, "User: octo")
	assert.Contains(t, out, "Organization: acme")
	assert.Contains(t, out, "Total Commits: 14")
	assert.Contains(t, out, "Pull Requests Created: 3")
	assert.Contains(t, out, "acme/alpha")
	assert.Contains(t, out, "acme/private-x: Forbidden")
	assert.NotContains(t, out, "Issues Created:", "disabled metrics stay off the report")
}

func TestConsoleRenderComparison(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	console := NewConsole(&buf)

	org := &domain.AggregateResult{Window: weekWindow(), Totals: domain.Metrics{Commits: 30}}
	personal := &domain.AggregateResult{Window: weekWindow(), Totals: domain.Metrics{Commits: 10}}

	console.RenderComparison(Compare("octo", "acme", org, personal))
	out := buf.String()

	assert.Contains(t, out, "Personal vs Organization Comparison")
	assert.Contains(t, out, "Commits")
	assert.Contains(t, out, "-20")
	assert.Contains(t, out, "75.0%")
}
