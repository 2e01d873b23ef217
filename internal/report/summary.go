package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/soralab/gh-productivity/internal/domain"
)

// WriteTextSummary generates the plain-text analysis file for one run and
// returns its path. The file is written under dir as
// productivity_summary_<user>_<date>.txt.
func WriteTextSummary(dir string, info RunInfo, res *domain.AggregateResult, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating summary directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("productivity_summary_%s_%s.txt", info.User, now.UTC().Format("2006-01-02")))

	if err := os.WriteFile(path, []byte(textSummary(info, res, now)), 0o644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return path, nil
}

// textSummary builds the summary body. Split out from the file write so the
// content is testable without touching the filesystem clock.
func textSummary(info RunInfo, res *domain.AggregateResult, now time.Time) string {
	var b strings.Builder
	rule := strings.Repeat("=", 80)
	sub := strings.Repeat("-", 50)

	fmt.Fprintf(&b, "%s\nGITHUB PRODUCTIVITY ANALYSIS SUMMARY\n%s\n\n", rule, rule)

	fmt.Fprintf(&b, "User: %s\n", info.User)
	if info.Personal {
		fmt.Fprintf(&b, "Scope: %s\n", info.ScopeLabel())
	} else {
		fmt.Fprintf(&b, "Organization: %s\n", info.Organization)
	}
	fmt.Fprintf(&b, "Analysis Period: %s to %s\n",
		res.Window.Start.UTC().Format(humanDate), res.Window.End.UTC().Format(humanDate))
	fmt.Fprintf(&b, "Report Generated: %s\n\n", now.UTC().Format("January 2, 2006 at 3:04 PM"))

	fmt.Fprintf(&b, "%s\nOVERALL PRODUCTIVITY METRICS\n%s\n", sub, sub)
	fmt.Fprintf(&b, "Total Commits: %d\n", res.Totals.Commits)
	fmt.Fprintf(&b, "Active Repositories: %d\n", len(res.PerRepo))
	if info.Metrics.PullRequests {
		fmt.Fprintf(&b, "Pull Requests Created: %d\n", res.Totals.PullRequests)
	}
	if info.Metrics.Reviews {
		fmt.Fprintf(&b, "Code Reviews Performed: %d\n", res.Totals.Reviews)
	}
	if info.Metrics.Issues {
		fmt.Fprintf(&b, "Issues Created: %d\n", res.Totals.Issues)
	}
	if info.Metrics.Lines {
		fmt.Fprintf(&b, "Lines Added: +%d\n", res.Totals.Additions)
		fmt.Fprintf(&b, "Lines Deleted: -%d\n", res.Totals.Deletions)
		fmt.Fprintf(&b, "Total Lines Modified: %d\n", res.Totals.Additions+res.Totals.Deletions)
	}

	days := res.Window.Days()
	series := dailyCommitSeries(res)
	mean, _ := stats.Mean(series)
	median, _ := stats.Median(series)
	busiest, _ := stats.Max(series)

	fmt.Fprintf(&b, "\n%s\nTIME-BASED ANALYSIS\n%s\n", sub, sub)
	fmt.Fprintf(&b, "Analysis Period: %d days\n", days)
	fmt.Fprintf(&b, "Average Commits per Day: %.1f\n", mean)
	fmt.Fprintf(&b, "Median Commits per Day: %.1f\n", median)
	fmt.Fprintf(&b, "Busiest Day: %.0f commits\n", busiest)
	if info.Metrics.Lines {
		avgLines := float64(res.Totals.Additions+res.Totals.Deletions) / float64(days)
		fmt.Fprintf(&b, "Average Lines Modified per Day: %.0f\n", avgLines)
	}

	fmt.Fprintf(&b, "\n%s\nINSIGHTS AND SUMMARY\n%s\n", sub, sub)
	if res.Totals.Commits == 0 {
		b.WriteString("No commit activity found in the specified timeframe.\n")
	} else {
		fmt.Fprintf(&b, "Productivity Level: %s\n", productivityLevel(mean))
		fmt.Fprintf(&b, "Repository Diversity: %d different repositories\n", len(res.PerRepo))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped Units: %d (see report for reasons)\n", len(res.Skipped))
	}

	fmt.Fprintf(&b, "\n%s\nEnd of Report\n%s\n", rule, rule)
	return b.String()
}

// dailyCommitSeries expands the per-day buckets onto every calendar day of
// the window, zeros included, so averages reflect the whole period rather
// than only the active days.
func dailyCommitSeries(res *domain.AggregateResult) []float64 {
	byDate := make(map[string]int, len(res.PerDay))
	for _, bucket := range res.PerDay {
		byDate[bucket.Date] = bucket.Counts.Commits
	}

	start := res.Window.Start.UTC().Truncate(24 * time.Hour)
	end := res.Window.End.UTC()
	series := make([]float64, 0, res.Window.Days())
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		series = append(series, float64(byDate[day.Format("2006-01-02")]))
	}
	if len(series) == 0 {
		series = append(series, 0)
	}
	return series
}

// productivityLevel maps the daily commit average onto a coarse rating.
func productivityLevel(avgPerDay float64) string {
	switch {
	case avgPerDay >= 5:
		return "Very High"
	case avgPerDay >= 3:
		return "High"
	case avgPerDay >= 1:
		return "Moderate"
	default:
		return "Low"
	}
}
