// Package demand turns flat prediction records into chart series, normalized
// plot coordinates, choropleth bins, increase rankings and export tables.
//
// Everything in this package is a pure function of its inputs. Empty or
// degenerate inputs produce empty or midpoint results, never errors.
package demand

import (
	"sort"

	"github.com/lox/medcast/internal/models"
)

// Select returns the records for one medication, municipality and period type,
// ordered by period index. Duplicate keys are passed through unchanged.
func Select(records []models.Prediction, medicationID, municipalityID string, period models.PeriodType) []models.Prediction {
	if medicationID == "" || municipalityID == "" {
		return []models.Prediction{}
	}
	return filter(records, func(p models.Prediction) bool {
		return p.MedicationID == medicationID &&
			p.MunicipalityID == municipalityID &&
			p.PeriodType == period
	})
}

// SelectMedication is Select without a municipality, used for record exports.
func SelectMedication(records []models.Prediction, medicationID string, period models.PeriodType) []models.Prediction {
	if medicationID == "" {
		return []models.Prediction{}
	}
	return filter(records, func(p models.Prediction) bool {
		return p.MedicationID == medicationID && p.PeriodType == period
	})
}

func filter(records []models.Prediction, keep func(models.Prediction) bool) []models.Prediction {
	out := make([]models.Prediction, 0)
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PeriodIndex < out[j].PeriodIndex
	})
	return out
}

// PeriodIndices returns the distinct period indices present for a medication, ascending.
func PeriodIndices(records []models.Prediction, medicationID string, period models.PeriodType) []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range records {
		if r.MedicationID != medicationID || r.PeriodType != period || seen[r.PeriodIndex] {
			continue
		}
		seen[r.PeriodIndex] = true
		out = append(out, r.PeriodIndex)
	}
	sort.Ints(out)
	return out
}
