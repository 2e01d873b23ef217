package domain

import (
	"fmt"
	"time"
)

// Timeframe presets accepted by NewWindow.
const (
	Preset3Days  = "3days"
	Preset1Week  = "1week"
	Preset1Month = "1month"
	PresetCustom = "custom"
)

const dateLayout = "2006-01-02"

// TimeWindow is an inclusive time range bounding which events count.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a window from a timeframe preset, anchored at now (UTC).
// The custom preset requires both bounds in YYYY-MM-DD form; the end date
// is extended to the end of its day so both dates are fully included.
func NewWindow(preset, customStart, customEnd string, now time.Time) (TimeWindow, error) {
	now = now.UTC()
	switch preset {
	case PresetCustom:
		if customStart == "" || customEnd == "" {
			return TimeWindow{}, fmt.Errorf("custom timeframe requires both start and end dates")
		}
		start, err := time.Parse(dateLayout, customStart)
		if err != nil {
			return TimeWindow{}, fmt.Errorf("invalid start date %q: %w", customStart, err)
		}
		end, err := time.Parse(dateLayout, customEnd)
		if err != nil {
			return TimeWindow{}, fmt.Errorf("invalid end date %q: %w", customEnd, err)
		}
		if end.Before(start) {
			return TimeWindow{}, fmt.Errorf("end date %s precedes start date %s", customEnd, customStart)
		}
		return TimeWindow{Start: start, End: end.Add(24*time.Hour - time.Second)}, nil
	case Preset3Days:
		return TimeWindow{Start: now.AddDate(0, 0, -3), End: now}, nil
	case Preset1Week:
		return TimeWindow{Start: now.AddDate(0, 0, -7), End: now}, nil
	case Preset1Month:
		return TimeWindow{Start: now.AddDate(0, 0, -30), End: now}, nil
	default:
		return TimeWindow{}, fmt.Errorf("unknown timeframe %q", preset)
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days returns the number of calendar days the window spans, minimum 1.
func (w TimeWindow) Days() int {
	days := int(w.End.Sub(w.Start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days
}

// SearchRange renders the window as a search qualifier range (S..U).
func (w TimeWindow) SearchRange() string {
	return w.Start.UTC().Format(dateLayout) + ".." + w.End.UTC().Format(dateLayout)
}
