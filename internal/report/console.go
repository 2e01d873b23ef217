// Package report renders collection results for people: a console report,
// a plain-text summary file and the organization-versus-personal
// comparison. It consumes an AggregateResult read-only and never triggers
// network calls.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pterm/pterm"

	"github.com/soralab/gh-productivity/internal/domain"
)

// RunInfo carries the run context a report needs beyond the result itself.
type RunInfo struct {
	User         string
	Organization string
	Personal     bool
	Metrics      domain.MetricSet
}

// ScopeLabel names the repository source for display.
func (i RunInfo) ScopeLabel() string {
	if i.Personal {
		return "Personal Repositories"
	}
	return i.Organization
}

const humanDate = "January 2, 2006"

// Console renders reports to a terminal.
type Console struct {
	out io.Writer
}

// NewConsole returns a Console writing to out, or to stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Render prints the productivity report for one run: header, totals, the
// per-repository breakdown sorted by commit count, and the units the run
// had to skip.
func (c *Console) Render(info RunInfo, res *domain.AggregateResult) {
	pterm.DefaultSection.WithWriter(c.out).Println("Productivity Report")

	info.printHeader(c.out, res.Window)
	pterm.Fprintln(c.out)

	c.printTotals(info, res)

	if len(res.PerRepo) > 0 {
		pterm.Fprintln(c.out)
		pterm.DefaultSection.WithWriter(c.out).WithLevel(2).Println("Per Repository Breakdown")
		c.printRepoTable(info, res)
	}

	c.printSkipped(res.Skipped)
}

func (i RunInfo) printHeader(out io.Writer, window domain.TimeWindow) {
	info := pterm.Info.WithWriter(out)
	info.Printfln("User: %s", i.User)
	if i.Personal {
		info.Printfln("Scope: %s", i.ScopeLabel())
	} else {
		info.Printfln("Organization: %s", i.Organization)
	}
	info.Printfln("Timeframe: %s to %s",
		window.Start.UTC().Format(humanDate), window.End.UTC().Format(humanDate))
}

func (c *Console) printTotals(info RunInfo, res *domain.AggregateResult) {
	out := pterm.Info.WithWriter(c.out)
	out.Printfln("Total Commits: %d", res.Totals.Commits)
	out.Printfln("Repositories with activity: %d", len(res.PerRepo))
	if info.Metrics.PullRequests {
		out.Printfln("Pull Requests Created: %d", res.Totals.PullRequests)
	}
	if info.Metrics.Reviews {
		out.Printfln("Code Reviews Performed: %d", res.Totals.Reviews)
	}
	if info.Metrics.Issues {
		out.Printfln("Issues Created: %d", res.Totals.Issues)
	}
	if info.Metrics.Lines {
		out.Printfln("Lines Modified: +%d/-%d (%d total)",
			res.Totals.Additions, res.Totals.Deletions, res.Totals.Additions+res.Totals.Deletions)
	}
}

func (c *Console) printRepoTable(info RunInfo, res *domain.AggregateResult) {
	rows := make([]domain.RepoActivity, len(res.PerRepo))
	copy(rows, res.PerRepo)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Counts.Commits > rows[j].Counts.Commits
	})

	data := pterm.TableData{{"Repository", "Commits", "PRs", "Reviews", "Issues", "±Lines"}}
	for _, row := range rows {
		name := row.Repo.FullName()
		if info.Personal {
			if row.Repo.IsFork {
				name += " (fork)"
			}
			if row.Repo.IsPrivate {
				name += " (private)"
			}
		}
		data = append(data, []string{
			name,
			fmt.Sprintf("%d", row.Counts.Commits),
			fmt.Sprintf("%d", row.Counts.PullRequests),
			fmt.Sprintf("%d", row.Counts.Reviews),
			fmt.Sprintf("%d", row.Counts.Issues),
			fmt.Sprintf("+%d/-%d", row.Counts.Additions, row.Counts.Deletions),
		})
	}
	pterm.DefaultTable.WithWriter(c.out).WithHasHeader().WithData(data).Render()
}

func (c *Console) printSkipped(skipped []domain.SkippedRepo) {
	if len(skipped) == 0 {
		return
	}
	pterm.Fprintln(c.out)
	warn := pterm.Warning.WithWriter(c.out)
	warn.Printfln("%d units were skipped:", len(skipped))
	for _, s := range skipped {
		warn.Printfln("  - %s: %s", s.Repo, s.Reason)
	}
}

// RenderComparison prints the organization-versus-personal comparison.
func (c *Console) RenderComparison(cmp *Comparison) {
	pterm.DefaultSection.WithWriter(c.out).Println("Personal vs Organization Comparison")

	info := pterm.Info.WithWriter(c.out)
	info.Printfln("User: %s", cmp.User)
	info.Printfln("Organization: %s", cmp.Organization)
	info.Printfln("Timeframe: %s to %s",
		cmp.Window.Start.UTC().Format(humanDate), cmp.Window.End.UTC().Format(humanDate))
	pterm.Fprintln(c.out)

	data := pterm.TableData{{"Metric", "Organization", "Personal", "Difference"}}
	appendRow := func(label string, d MetricDelta) {
		data = append(data, []string{
			label,
			fmt.Sprintf("%d", d.Organization),
			fmt.Sprintf("%d", d.Personal),
			fmt.Sprintf("%+d", d.Difference),
		})
	}
	appendRow("Commits", cmp.Commits)
	appendRow("Pull Requests", cmp.PullRequests)
	appendRow("Code Reviews", cmp.Reviews)
	appendRow("Issues", cmp.Issues)
	appendRow("Lines Added", cmp.Additions)
	appendRow("Lines Deleted", cmp.Deletions)
	appendRow("Active Repositories", cmp.ActiveRepos)
	pterm.DefaultTable.WithWriter(c.out).WithHasHeader().WithData(data).Render()

	if cmp.Distribution.TotalCommits > 0 {
		pterm.Fprintln(c.out)
		info.Printfln("Activity Distribution:")
		info.Printfln("  Organization: %.1f%% (%d/%d)",
			cmp.Distribution.OrgPercent, cmp.Distribution.OrgCommits, cmp.Distribution.TotalCommits)
		info.Printfln("  Personal:     %.1f%% (%d/%d)",
			cmp.Distribution.PersonalPercent, cmp.Distribution.PersonalCommits, cmp.Distribution.TotalCommits)
	}
}
