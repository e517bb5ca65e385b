package demand

import (
	"fmt"
	"math"
)

// ShiftThreshold is the percentage change that counts as significant.
const ShiftThreshold = 30.0

// Shift describes the change from the last historical point to the forecast.
type Shift struct {
	From    ChartPoint `json:"from"`
	To      ChartPoint `json:"to"`
	Percent float64    `json:"percent"`
}

func (s Shift) Increase() bool { return s.Percent > 0 }

func (s Shift) Message() string {
	dir := "decrease"
	if s.Increase() {
		dir = "increase"
	}
	return fmt.Sprintf("Significant %s of %.1f%% expected in %s compared to %s.",
		dir, math.Abs(s.Percent), s.To.Label, s.From.Label)
}

// DetectShift reports a significant change between the last previous point
// and the upcoming point. No shift is reported without both points or when
// the previous value is not positive.
func DetectShift(s Series) (Shift, bool) {
	if len(s.Previous) == 0 || len(s.Upcoming) == 0 {
		return Shift{}, false
	}
	from := s.Previous[len(s.Previous)-1]
	to := s.Upcoming[0]
	if !(from.Y > 0) || !finite(to.Y) || !finite(from.Y) {
		return Shift{}, false
	}
	pct := (to.Y - from.Y) * 100 / from.Y
	if math.Abs(pct) <= ShiftThreshold {
		return Shift{}, false
	}
	return Shift{From: from, To: to, Percent: pct}, true
}
