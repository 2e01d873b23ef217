package viz

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/soralab/gh-productivity/internal/domain"
)

const (
	barWidth    = 14
	barGap      = 6
	barStep     = barWidth + barGap
	chartHeight = 160

	timelineLeft   = 40 // room for the y-axis labels
	timelineTop    = 40
	timelineBottom = 48 // room for the date labels and legend
)

type timelineBar struct {
	X, Y   int
	Height int
	Title  string
}

type timelineMarker struct {
	CX, CY int
	Title  string
}

type axisLabel struct {
	X, Y int
	Text string
}

type timelineData struct {
	Title   string
	Width   int
	Height  int
	AxisY   int
	Left    int
	MaxText string
	Bars    []timelineBar
	Markers []timelineMarker
	Labels  []axisLabel
	LegendY int
}

var timelineTmpl = template.Must(template.New("timeline").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" font-family="sans-serif" font-size="10">
  <rect width="100%" height="100%" fill="#ffffff"/>
  <text x="4" y="16" font-size="13" font-weight="bold">{{.Title}}</text>
  <line x1="{{.Left}}" y1="{{.AxisY}}" x2="{{.Width}}" y2="{{.AxisY}}" stroke="#d0d7de"/>
  <text x="4" y="44">{{.MaxText}}</text>
  <text x="4" y="{{.AxisY}}">0</text>
{{- range .Bars}}
  <rect x="{{.X}}" y="{{.Y}}" width="14" height="{{.Height}}" fill="#40c463"><title>{{.Title}}</title></rect>
{{- end}}
{{- range .Markers}}
  <circle cx="{{.CX}}" cy="{{.CY}}" r="3" fill="#0969da"><title>{{.Title}}</title></circle>
{{- end}}
{{- range .Labels}}
  <text x="{{.X}}" y="{{.Y}}">{{.Text}}</text>
{{- end}}
  <rect x="{{.Left}}" y="{{.LegendY}}" width="14" height="10" fill="#40c463"/>
  <text x="{{.Left}}" y="{{.LegendY}}" dx="18" dy="9">commits</text>
  <circle cx="{{.Left}}" cy="{{.LegendY}}" r="3" transform="translate(90,5)" fill="#0969da"/>
  <text x="{{.Left}}" y="{{.LegendY}}" dx="96" dy="9">PRs + reviews + issues</text>
</svg>
`))

// WriteTimeline renders the window's per-day activity as a bar chart,
// commits as bars and the other categories as an overlay, and saves it to
// path.
func WriteTimeline(path, user string, res *domain.AggregateResult) error {
	days := windowDays(res)
	if len(days) == 0 {
		return fmt.Errorf("window contains no days")
	}

	max := maxCommits(days)
	if max == 0 {
		max = 1
	}
	axisY := timelineTop + chartHeight

	var bars []timelineBar
	var markers []timelineMarker
	var labels []axisLabel
	labelEvery := (len(days) + 13) / 14 // at most ~14 date labels
	for i, d := range days {
		x := timelineLeft + i*barStep
		h := d.Counts.Commits * chartHeight / max
		bars = append(bars, timelineBar{
			X:      x,
			Y:      axisY - h,
			Height: h,
			Title:  fmt.Sprintf("%s: %d commits", d.Date.Format(dateLayout), d.Counts.Commits),
		})

		if other := d.Counts.PullRequests + d.Counts.Reviews + d.Counts.Issues; other > 0 {
			oh := other * chartHeight / max
			if oh > chartHeight {
				oh = chartHeight
			}
			markers = append(markers, timelineMarker{
				CX: x + barWidth/2,
				CY: axisY - oh,
				Title: fmt.Sprintf("%s: %d PRs, %d reviews, %d issues",
					d.Date.Format(dateLayout), d.Counts.PullRequests, d.Counts.Reviews, d.Counts.Issues),
			})
		}

		if i%labelEvery == 0 {
			labels = append(labels, axisLabel{X: x, Y: axisY + 14, Text: d.Date.Format("01-02")})
		}
	}

	data := timelineData{
		Title:   fmt.Sprintf("Daily activity for %s", user),
		Width:   timelineLeft + len(days)*barStep + 16,
		Height:  axisY + timelineBottom,
		AxisY:   axisY,
		Left:    timelineLeft,
		MaxText: fmt.Sprintf("%d", max),
		Bars:    bars,
		Markers: markers,
		Labels:  labels,
		LegendY: axisY + 24,
	}

	var buf bytes.Buffer
	if err := timelineTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering timeline: %w", err)
	}
	return writeFile(path, buf.Bytes())
}
