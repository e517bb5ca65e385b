package demand

import (
	"math"
	"sort"

	"github.com/lox/medcast/internal/models"
)

type RegionValue struct {
	RegionID string  `json:"regionId"`
	Value    float64 `json:"value"`
}

// RegionValueMap is a per-region snapshot for one medication, period type
// and period index. Order is significant: it is the tie-break for ranking.
type RegionValueMap []RegionValue

// Lookup returns the first value recorded for a region.
func (m RegionValueMap) Lookup(regionID string) (float64, bool) {
	for _, rv := range m {
		if rv.RegionID == regionID {
			return rv.Value, true
		}
	}
	return 0, false
}

func (m RegionValueMap) index() map[string]float64 {
	idx := make(map[string]float64, len(m))
	for _, rv := range m {
		if _, ok := idx[rv.RegionID]; !ok {
			idx[rv.RegionID] = rv.Value
		}
	}
	return idx
}

// RegionValues builds a snapshot of one period from a record set, in record
// order. Only the first record per municipality is used.
func RegionValues(records []models.Prediction, medicationID string, period models.PeriodType, periodIndex int) RegionValueMap {
	out := RegionValueMap{}
	seen := make(map[string]bool)
	for _, r := range records {
		if r.MedicationID != medicationID || r.PeriodType != period || r.PeriodIndex != periodIndex {
			continue
		}
		if seen[r.MunicipalityID] {
			continue
		}
		seen[r.MunicipalityID] = true
		out = append(out, RegionValue{RegionID: r.MunicipalityID, Value: r.Value})
	}
	return out
}

type DemandDelta struct {
	RegionID   string  `json:"regionId"`
	RegionName string  `json:"regionName"`
	Current    float64 `json:"current"`
	Previous   float64 `json:"previous"`
	Increase   float64 `json:"increase"`
}

// DefaultTopK is the size of the increases panel.
const DefaultTopK = 10

// Rank returns up to k regions from current ordered by increase over previous,
// largest first. A region missing from previous counts from zero. Regions only
// in previous are ignored. Equal increases keep the order of current. NaN
// increases cannot be ordered and are skipped.
func Rank(current, previous RegionValueMap, names map[string]string, k int) []DemandDelta {
	out := []DemandDelta{}
	if len(current) == 0 || len(previous) == 0 || k <= 0 {
		return out
	}

	prev := previous.index()
	for _, rv := range current {
		before := prev[rv.RegionID]
		d := DemandDelta{
			RegionID:   rv.RegionID,
			RegionName: regionName(names, rv.RegionID),
			Current:    rv.Value,
			Previous:   before,
			Increase:   rv.Value - before,
		}
		if math.IsNaN(d.Increase) {
			continue
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Increase > out[j].Increase
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func regionName(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

// RegionNames indexes municipality display names by id.
func RegionNames(regions []models.Municipality) map[string]string {
	names := make(map[string]string, len(regions))
	for _, r := range regions {
		names[r.ID] = r.DisplayName()
	}
	return names
}
