package demand

import "math"

// Plot space is percentage units. Values outside [plotMin, plotMax] are clamped.
const (
	plotMin  = 5.0
	plotMax  = 95.0
	plotYTop = 85.0
	plotMid  = 50.0
)

// NormalizedPoint is a chart point in percentage plot coordinates.
// Y grows downwards: the highest value has the smallest Y.
type NormalizedPoint struct {
	Point ChartPoint `json:"point"`
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
}

// Normalize maps points into [5, 95] on x and [5, 85] inverted on y.
// A single point or a zero-span axis collapses to 50. Non-finite values do
// not contribute to the range and are placed at 50.
func Normalize(points []ChartPoint) []NormalizedPoint {
	out := make([]NormalizedPoint, 0, len(points))
	if len(points) == 0 {
		return out
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.X)
		ys[i] = p.Y
	}
	xr := rangeOf(xs)
	yr := rangeOf(ys)

	for i, p := range points {
		np := NormalizedPoint{Point: p, X: plotMid, Y: plotMid}
		if len(points) > 1 {
			np.X = xr.project(xs[i], plotMin, plotMax)
			np.Y = yr.project(ys[i], plotYTop, plotMin)
		}
		out = append(out, np)
	}
	return out
}

type axisRange struct {
	lo, hi float64
	ok     bool
}

func rangeOf(vals []float64) axisRange {
	var r axisRange
	for _, v := range vals {
		if !finite(v) {
			continue
		}
		if !r.ok {
			r = axisRange{lo: v, hi: v, ok: true}
			continue
		}
		r.lo = math.Min(r.lo, v)
		r.hi = math.Max(r.hi, v)
	}
	return r
}

// project interpolates v from the range onto [from, to]. Halving before
// subtracting keeps the span finite for values near the float64 limits.
func (r axisRange) project(v, from, to float64) float64 {
	if !r.ok || r.lo == r.hi || !finite(v) {
		return plotMid
	}
	t := (v/2 - r.lo/2) / (r.hi/2 - r.lo/2)
	out := from + t*(to-from)
	if !finite(out) {
		return plotMid
	}
	return math.Max(plotMin, math.Min(plotMax, out))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
