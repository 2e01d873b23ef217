// Package viz renders collected activity as standalone SVG files: a
// week-by-weekday commit heatmap and a per-day timeline chart. Rendering
// is template-driven and consumes an AggregateResult read-only.
package viz

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soralab/gh-productivity/internal/domain"
)

const dateLayout = "2006-01-02"

// day is one calendar day of the window with its activity counts.
type day struct {
	Date   time.Time
	Counts domain.Metrics
}

// windowDays expands the result's per-day buckets onto every day of the
// window, zeros included, in ascending order.
func windowDays(res *domain.AggregateResult) []day {
	byDate := make(map[string]domain.Metrics, len(res.PerDay))
	for _, bucket := range res.PerDay {
		byDate[bucket.Date] = bucket.Counts
	}

	start := res.Window.Start.UTC().Truncate(24 * time.Hour)
	end := res.Window.End.UTC()
	var days []day
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, day{Date: d, Counts: byDate[d.Format(dateLayout)]})
	}
	return days
}

func maxCommits(days []day) int {
	max := 0
	for _, d := range days {
		if d.Counts.Commits > max {
			max = d.Counts.Commits
		}
	}
	return max
}

// heatColors is the five-step green scale, lightest to darkest.
var heatColors = [...]string{"#ebedf0", "#9be9a8", "#40c463", "#30a14e", "#216e39"}

// heatColor buckets a commit count onto the color scale relative to the
// window's busiest day.
func heatColor(commits, max int) string {
	if commits == 0 || max == 0 {
		return heatColors[0]
	}
	idx := 1 + commits*(len(heatColors)-2)/max
	if idx >= len(heatColors) {
		idx = len(heatColors) - 1
	}
	return heatColors[idx]
}

// writeFile renders into a temp file and moves it into place.
func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating visualization directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("writing visualization: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming visualization into place: %w", err)
	}
	return nil
}
