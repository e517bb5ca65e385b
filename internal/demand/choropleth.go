package demand

import (
	"fmt"
	"math"

	"github.com/lox/medcast/internal/models"
)

// Bucket is a choropleth class. 0 is "no data", 5 is the highest demand.
type Bucket int

const (
	NoData     Bucket = 0
	TopBucket  Bucket = 5
	numBuckets        = 6
)

// ColorToken is a CSS hex color.
type ColorToken string

// bucketColors is indexed by Bucket.
var bucketColors = [numBuckets]ColorToken{
	"#FFEDA0",
	"#FD8D3C",
	"#FC4E2A",
	"#E31A1C",
	"#BD0026",
	"#800026",
}

// Ascending thresholds. A value above thresholds[i] falls in bucket i+2.
var (
	weeklyThresholds  = [4]float64{15, 30, 50, 70}
	monthlyThresholds = [4]float64{60, 120, 200, 300}
)

func thresholds(period models.PeriodType) [4]float64 {
	if period == models.PeriodMonthly {
		return monthlyThresholds
	}
	return weeklyThresholds
}

// BucketFor classifies a value. Non-positive values and NaN are NoData;
// otherwise the highest threshold strictly exceeded wins. Unknown period
// types use the weekly table.
func BucketFor(value float64, period models.PeriodType) Bucket {
	if math.IsNaN(value) || value <= 0 {
		return NoData
	}
	t := thresholds(period)
	for i := len(t) - 1; i >= 0; i-- {
		if value > t[i] {
			return Bucket(i + 2)
		}
	}
	return 1
}

func (b Bucket) Color() ColorToken {
	if b < NoData || b > TopBucket {
		return bucketColors[NoData]
	}
	return bucketColors[b]
}

// ColorFor is BucketFor followed by the bucket's color.
func ColorFor(value float64, period models.PeriodType) ColorToken {
	return BucketFor(value, period).Color()
}

type LegendEntry struct {
	Bucket Bucket     `json:"bucket"`
	Color  ColorToken `json:"color"`
	Label  string     `json:"label"`
}

// Legend lists every bucket from NoData upwards.
func Legend(period models.PeriodType) []LegendEntry {
	t := thresholds(period)
	out := make([]LegendEntry, 0, numBuckets)
	out = append(out, LegendEntry{Bucket: NoData, Color: NoData.Color(), Label: "No data"})
	lower := 0.0
	for i, upper := range t {
		b := Bucket(i + 1)
		out = append(out, LegendEntry{Bucket: b, Color: b.Color(), Label: fmt.Sprintf("%g-%g", lower, upper)})
		lower = upper
	}
	out = append(out, LegendEntry{Bucket: TopBucket, Color: TopBucket.Color(), Label: fmt.Sprintf("%g+", lower)})
	return out
}

type RegionColor struct {
	RegionID   string     `json:"regionId"`
	RegionName string     `json:"regionName"`
	Value      float64    `json:"value"`
	Bucket     Bucket     `json:"bucket"`
	Color      ColorToken `json:"color"`
}

// Choropleth colors every region in a snapshot, in snapshot order.
func Choropleth(values RegionValueMap, names map[string]string, period models.PeriodType) []RegionColor {
	out := make([]RegionColor, 0, len(values))
	for _, rv := range values {
		b := BucketFor(rv.Value, period)
		out = append(out, RegionColor{
			RegionID:   rv.RegionID,
			RegionName: regionName(names, rv.RegionID),
			Value:      rv.Value,
			Bucket:     b,
			Color:      b.Color(),
		})
	}
	return out
}
