package demand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/medcast/internal/models"
)

func TestRank_Scenario(t *testing.T) {
	current := RegionValueMap{{"A", 120}, {"B", 80}}
	previous := RegionValueMap{{"A", 100}, {"B", 100}}

	got := Rank(current, previous, map[string]string{"A": "Alpha"}, 10)
	require.Len(t, got, 2)
	assert.Equal(t, DemandDelta{RegionID: "A", RegionName: "Alpha", Current: 120, Previous: 100, Increase: 20}, got[0])
	assert.Equal(t, "B", got[1].RegionID)
	assert.Equal(t, "B", got[1].RegionName, "unresolved names fall back to id")
	assert.Equal(t, -20.0, got[1].Increase)
}

func TestRank_NewRegionCountsFromZero(t *testing.T) {
	current := RegionValueMap{{"A", 10}, {"NEW", 40}}
	previous := RegionValueMap{{"A", 5}, {"GONE", 500}}

	got := Rank(current, previous, nil, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "NEW", got[0].RegionID)
	assert.Equal(t, 40.0, got[0].Increase)
	for _, d := range got {
		assert.NotEqual(t, "GONE", d.RegionID)
	}
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	current := RegionValueMap{{"C", 15}, {"A", 15}, {"B", 15}}
	previous := RegionValueMap{{"A", 5}, {"B", 5}, {"C", 5}}

	got := Rank(current, previous, nil, 10)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{got[0].RegionID, got[1].RegionID, got[2].RegionID})
}

func TestRank_LimitsAndEmpty(t *testing.T) {
	var current, previous RegionValueMap
	for i := 0; i < 25; i++ {
		id := string(rune('a' + i))
		current = append(current, RegionValue{id, float64(i * 3)})
		previous = append(previous, RegionValue{id, float64(i)})
	}

	got := Rank(current, previous, nil, DefaultTopK)
	assert.Len(t, got, DefaultTopK)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Increase, got[i].Increase)
	}

	assert.Empty(t, Rank(current, previous, nil, 0))
	assert.Empty(t, Rank(nil, previous, nil, 10))
	assert.Empty(t, Rank(current, nil, nil, 10))
	assert.NotNil(t, Rank(nil, nil, nil, 10))
}

func TestRank_SkipsNaN(t *testing.T) {
	got := Rank(RegionValueMap{{"A", math.NaN()}, {"B", 3}}, RegionValueMap{{"A", 1}}, nil, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].RegionID)
}

func TestRegionValues(t *testing.T) {
	records := []models.Prediction{
		pred("aspirin", "4216", models.PeriodWeekly, 4, 12),
		pred("aspirin", "5053", models.PeriodWeekly, 4, 30),
		pred("aspirin", "5053", models.PeriodWeekly, 4, 99),
		pred("aspirin", "3440", models.PeriodWeekly, 3, 7),
		pred("insulin", "3440", models.PeriodWeekly, 4, 7),
	}

	got := RegionValues(records, "aspirin", models.PeriodWeekly, 4)
	assert.Equal(t, RegionValueMap{{"4216", 12}, {"5053", 30}}, got)

	v, ok := got.Lookup("5053")
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)
	_, ok = got.Lookup("3440")
	assert.False(t, ok)
}

func TestRegionNames(t *testing.T) {
	names := RegionNames([]models.Municipality{{ID: "4216", Name: "Birkenes"}, {ID: "9999"}})
	assert.Equal(t, "Birkenes", names["4216"])
	assert.Equal(t, "9999", names["9999"])
}
