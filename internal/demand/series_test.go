package demand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/medcast/internal/models"
)

func TestBuildSeries_Empty(t *testing.T) {
	s := BuildSeries(nil)
	assert.NotNil(t, s.Previous)
	assert.NotNil(t, s.Upcoming)
	assert.Empty(t, s.Previous)
	assert.Empty(t, s.Upcoming)
}

func TestBuildSeries_SingleRecord(t *testing.T) {
	s := BuildSeries([]models.Prediction{pred("aspirin", "4216", models.PeriodWeekly, 1, 100)})

	assert.Empty(t, s.Previous)
	require.Len(t, s.Upcoming, 1)
	assert.Equal(t, 1, s.Upcoming[0].X)
	assert.Equal(t, 100.0, s.Upcoming[0].Y)
	require.NotNil(t, s.Upcoming[0].Confidence)
	assert.Equal(t, 0.0, *s.Upcoming[0].Confidence)
}

func TestBuildSeries_Partition(t *testing.T) {
	records := []models.Prediction{
		pred("aspirin", "4216", models.PeriodMonthly, 1, 10),
		pred("aspirin", "4216", models.PeriodMonthly, 2, 20),
		pred("aspirin", "4216", models.PeriodMonthly, 3, 30),
	}
	records[0].Confidence = fptr(91)
	records[1].Label = "custom label"
	records[2].Confidence = fptr(88)
	records[2].Date = "2026-03-01"

	s := BuildSeries(records)

	assert.Equal(t, len(records), len(s.Previous)+len(s.Upcoming))
	require.Len(t, s.Upcoming, 1)
	require.Len(t, s.Previous, 2)

	assert.Equal(t, []int{1, 2}, []int{s.Previous[0].X, s.Previous[1].X})
	for _, p := range s.Previous {
		assert.Nil(t, p.Confidence, "history carries no confidence")
	}
	assert.Equal(t, "Month 2", s.Previous[1].Label)

	up := s.Upcoming[0]
	assert.Equal(t, "Month 3", up.Label)
	assert.Equal(t, "2026-03-01", up.Date)
	require.NotNil(t, up.Confidence)
	assert.Equal(t, 88.0, *up.Confidence)
}

func TestSeriesView(t *testing.T) {
	s := BuildSeries([]models.Prediction{
		pred("aspirin", "4216", models.PeriodWeekly, 1, 10),
		pred("aspirin", "4216", models.PeriodWeekly, 2, 20),
	})

	tests := []struct {
		mode ViewMode
		want []int
	}{
		{ViewPrevious, []int{1}},
		{ViewUpcoming, []int{2}},
		{ViewBoth, []int{1, 2}},
		{ParseViewMode("bogus"), []int{1, 2}},
	}
	for _, tt := range tests {
		var xs []int
		for _, p := range s.View(tt.mode) {
			xs = append(xs, p.X)
		}
		assert.Equal(t, tt.want, xs, "mode %s", tt.mode)
	}
}

func TestTrimHistory(t *testing.T) {
	var records []models.Prediction
	for i := 1; i <= 10; i++ {
		records = append(records, pred("aspirin", "4216", models.PeriodWeekly, i, float64(i)))
	}
	s := BuildSeries(records)

	trimmed := s.TrimHistory(4)
	require.Len(t, trimmed.Previous, 4)
	assert.Equal(t, 6, trimmed.Previous[0].X)
	assert.Equal(t, 9, trimmed.Previous[3].X)
	assert.Equal(t, s.Upcoming, trimmed.Upcoming)

	assert.Len(t, s.TrimHistory(0).Previous, 9)
	assert.Len(t, s.TrimHistory(50).Previous, 9)
	assert.Len(t, s.Previous, 9, "original series untouched")
}

func TestHistoryWindows(t *testing.T) {
	weekly := HistoryWindows(models.PeriodWeekly)
	require.Len(t, weekly, 3)
	assert.Equal(t, "Last 8 weeks", weekly[1].Label)

	monthly := HistoryWindows(models.PeriodMonthly)
	require.Len(t, monthly, 3)
	assert.Equal(t, HistoryWindow{Label: "Last Year", Periods: 12}, monthly[2])
}

func TestSummarize(t *testing.T) {
	s := BuildSeries([]models.Prediction{
		pred("aspirin", "4216", models.PeriodWeekly, 1, 40),
		pred("aspirin", "4216", models.PeriodWeekly, 2, 15),
		pred("aspirin", "4216", models.PeriodWeekly, 3, 55),
	})

	sum := Summarize(s)
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, 15.0, sum.Min)
	assert.Equal(t, 55.0, sum.Max)
	require.NotNil(t, sum.Next)
	assert.Equal(t, "Week 3", sum.Next.Label)

	empty := Summarize(BuildSeries(nil))
	assert.Zero(t, empty.Count)
	assert.Nil(t, empty.Next)
}

func TestDetectShift(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		want     bool
		increase bool
	}{
		{"large increase", []float64{10, 20, 30}, true, true},
		{"large decrease", []float64{50, 100, 40}, true, false},
		{"exactly threshold", []float64{100, 130}, false, false},
		{"small change", []float64{100, 110}, false, false},
		{"zero previous", []float64{0, 50}, false, false},
		{"single point", []float64{50}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []models.Prediction
			for i, v := range tt.values {
				records = append(records, pred("aspirin", "4216", models.PeriodWeekly, i+1, v))
			}
			shift, ok := DetectShift(BuildSeries(records))
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.increase, shift.Increase())
				assert.NotEmpty(t, shift.Message())
			}
		})
	}
}
