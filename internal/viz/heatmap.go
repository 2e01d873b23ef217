package viz

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/soralab/gh-productivity/internal/domain"
)

const (
	cellSize = 13
	cellGap  = 3
	cellStep = cellSize + cellGap

	heatmapLeft = 34 // room for weekday labels
	heatmapTop  = 40 // room for the title and month labels
)

type heatmapCell struct {
	X, Y  int
	Color string
	Title string
}

type monthLabel struct {
	X    int
	Text string
}

type heatmapData struct {
	Title   string
	Width   int
	Height  int
	MonRowY int
	FriRowY int
	LegendY int
	Cells   []heatmapCell
	Months  []monthLabel
	Legend  []heatmapCell
}

var heatmapTmpl = template.Must(template.New("heatmap").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" font-family="sans-serif" font-size="10">
  <rect width="100%" height="100%" fill="#ffffff"/>
  <text x="4" y="16" font-size="13" font-weight="bold">{{.Title}}</text>
{{- range .Months}}
  <text x="{{.X}}" y="34">{{.Text}}</text>
{{- end}}
  <text x="4" y="{{.MonRowY}}">Mon</text>
  <text x="4" y="{{.FriRowY}}">Fri</text>
{{- range .Cells}}
  <rect x="{{.X}}" y="{{.Y}}" width="13" height="13" rx="2" fill="{{.Color}}"><title>{{.Title}}</title></rect>
{{- end}}
  <text x="4" y="{{.LegendY}}" dy="10">Less</text>
{{- range .Legend}}
  <rect x="{{.X}}" y="{{.Y}}" width="13" height="13" rx="2" fill="{{.Color}}"/>
{{- end}}
</svg>
`))

// WriteHeatmap renders the window's commit activity as a week-by-weekday
// heatmap and saves it to path.
func WriteHeatmap(path, user string, res *domain.AggregateResult) error {
	days := windowDays(res)
	if len(days) == 0 {
		return fmt.Errorf("window contains no days")
	}
	max := maxCommits(days)

	var cells []heatmapCell
	var months []monthLabel
	week := 0
	lastMonth := time.Month(0)
	for i, d := range days {
		weekday := int(d.Date.Weekday()) // Sunday = 0, matching the row order
		if i > 0 && weekday == 0 {
			week++
		}
		x := heatmapLeft + week*cellStep
		if m := d.Date.Month(); m != lastMonth {
			months = append(months, monthLabel{X: x, Text: d.Date.Format("Jan")})
			lastMonth = m
		}
		cells = append(cells, heatmapCell{
			X:     x,
			Y:     heatmapTop + weekday*cellStep,
			Color: heatColor(d.Counts.Commits, max),
			Title: fmt.Sprintf("%s: %d commits", d.Date.Format(dateLayout), d.Counts.Commits),
		})
	}

	legendY := heatmapTop + 7*cellStep + 8
	legend := make([]heatmapCell, len(heatColors))
	for i, color := range heatColors {
		legend[i] = heatmapCell{X: heatmapLeft + i*cellStep, Y: legendY, Color: color}
	}

	width := heatmapLeft + (week+1)*cellStep + 16
	if min := heatmapLeft + len(heatColors)*cellStep + 40; width < min {
		width = min // short windows still need room for the legend
	}

	data := heatmapData{
		Title:   fmt.Sprintf("Commit activity for %s", user),
		Width:   width,
		Height:  legendY + cellStep + 8,
		MonRowY: heatmapTop + 1*cellStep + 11, // baseline inside the Monday row
		FriRowY: heatmapTop + 5*cellStep + 11,
		LegendY: legendY,
		Cells:   cells,
		Months:  months,
		Legend:  legend,
	}

	var buf bytes.Buffer
	if err := heatmapTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering heatmap: %w", err)
	}
	return writeFile(path, buf.Bytes())
}
