package demand

import "math"

type OutlierStatus string

const (
	OutlierNormal       OutlierStatus = "Normal"
	OutlierHigh         OutlierStatus = "High Outlier"
	OutlierLow          OutlierStatus = "Low Outlier"
	OutlierInsufficient OutlierStatus = "Insufficient History"
)

// OutlierZ is the z-score beyond which a value is an outlier.
const OutlierZ = 2.0

// ClassifyOutlier scores value against a region's own history using the
// sample standard deviation. At least two finite history values are needed.
// A flat history flags any differing value.
func ClassifyOutlier(history []float64, value float64) OutlierStatus {
	vals := make([]float64, 0, len(history))
	for _, v := range history {
		if finite(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) < 2 || !finite(value) {
		return OutlierInsufficient
	}

	m := mean(vals)
	sd := stddev(vals, m)
	if sd == 0 {
		switch {
		case value > m:
			return OutlierHigh
		case value < m:
			return OutlierLow
		}
		return OutlierNormal
	}

	z := (value - m) / sd
	switch {
	case z > OutlierZ:
		return OutlierHigh
	case z < -OutlierZ:
		return OutlierLow
	}
	return OutlierNormal
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, m float64) float64 {
	ss := 0.0
	for _, v := range vals {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
