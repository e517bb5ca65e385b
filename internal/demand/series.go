package demand

import (
	"fmt"
	"math"

	"github.com/lox/medcast/internal/models"
)

// ChartPoint is a prediction projected into chart space.
type ChartPoint struct {
	X          int      `json:"x"`
	Y          float64  `json:"y"`
	Label      string   `json:"label"`
	Date       string   `json:"date,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Series splits a selection into history and the single forecast point.
type Series struct {
	Previous []ChartPoint `json:"previous"`
	Upcoming []ChartPoint `json:"upcoming"`
}

// Label is the canonical point label, e.g. "Week 7" or "Month 3".
// Labels supplied by the source are not used for chart points.
func Label(period models.PeriodType, index int) string {
	return fmt.Sprintf("%s %d", period.Noun(), index)
}

// BuildSeries expects records ordered by period index, as returned by Select.
// The last record becomes the upcoming point and carries a confidence
// (0 when absent); all others are previous points without confidence.
func BuildSeries(selected []models.Prediction) Series {
	s := Series{Previous: []ChartPoint{}, Upcoming: []ChartPoint{}}
	if len(selected) == 0 {
		return s
	}

	last := len(selected) - 1
	for _, r := range selected[:last] {
		s.Previous = append(s.Previous, toPoint(r))
	}

	up := toPoint(selected[last])
	conf := 0.0
	if c := selected[last].Confidence; c != nil {
		conf = *c
	}
	up.Confidence = &conf
	s.Upcoming = append(s.Upcoming, up)
	return s
}

func toPoint(r models.Prediction) ChartPoint {
	return ChartPoint{
		X:     r.PeriodIndex,
		Y:     r.Value,
		Label: Label(r.PeriodType, r.PeriodIndex),
		Date:  r.Date,
	}
}

// ViewMode selects which part of a series is plotted.
type ViewMode string

const (
	ViewPrevious ViewMode = "previous"
	ViewUpcoming ViewMode = "upcoming"
	ViewBoth     ViewMode = "both"
)

// ParseViewMode defaults to ViewBoth for unknown values.
func ParseViewMode(s string) ViewMode {
	switch ViewMode(s) {
	case ViewPrevious, ViewUpcoming:
		return ViewMode(s)
	}
	return ViewBoth
}

// View returns the points for a view mode, previous points first.
func (s Series) View(mode ViewMode) []ChartPoint {
	out := make([]ChartPoint, 0, len(s.Previous)+len(s.Upcoming))
	if mode != ViewUpcoming {
		out = append(out, s.Previous...)
	}
	if mode != ViewPrevious {
		out = append(out, s.Upcoming...)
	}
	return out
}

// TrimHistory keeps the last n previous points. n <= 0 keeps everything.
func (s Series) TrimHistory(n int) Series {
	if n <= 0 || len(s.Previous) <= n {
		return s
	}
	return Series{
		Previous: append([]ChartPoint{}, s.Previous[len(s.Previous)-n:]...),
		Upcoming: s.Upcoming,
	}
}

// HistoryWindow is a selectable amount of history for a period type.
type HistoryWindow struct {
	Label   string `json:"label"`
	Periods int    `json:"periods"`
}

func HistoryWindows(period models.PeriodType) []HistoryWindow {
	if period == models.PeriodMonthly {
		return []HistoryWindow{
			{Label: "Last 3 Months", Periods: 3},
			{Label: "Last 6 Months", Periods: 6},
			{Label: "Last Year", Periods: 12},
		}
	}
	return []HistoryWindow{
		{Label: "Last 4 weeks", Periods: 4},
		{Label: "Last 8 weeks", Periods: 8},
		{Label: "Last 12 weeks", Periods: 12},
	}
}

// Summary holds the statistics shown next to a chart.
type Summary struct {
	Count int         `json:"count"`
	Min   float64     `json:"min"`
	Max   float64     `json:"max"`
	Next  *ChartPoint `json:"next,omitempty"`
}

// Summarize reports the demand range over all finite values and the forecast point.
func Summarize(s Series) Summary {
	var sum Summary
	first := true
	for _, p := range s.View(ViewBoth) {
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			continue
		}
		sum.Count++
		if first || p.Y < sum.Min {
			sum.Min = p.Y
		}
		if first || p.Y > sum.Max {
			sum.Max = p.Y
		}
		first = false
	}
	if len(s.Upcoming) > 0 {
		next := s.Upcoming[0]
		sum.Next = &next
	}
	return sum
}
