package ingest

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/lox/medcast/internal/models"
	"github.com/lox/medcast/internal/store"
)

var DemoMedications = []models.Medication{
	{ID: "aspirin", Name: "Aspirin", Category: "Pain Relief", Description: "Over-the-counter pain reliever commonly used for headaches and minor pain. Demand increases during weather changes."},
	{ID: "ibuprofen", Name: "Ibuprofen", Category: "Anti-inflammatory", Description: "Nonsteroidal anti-inflammatory drug (NSAID) for pain and fever reduction. Higher demand during cold weather."},
	{ID: "antihistamine", Name: "Antihistamine", Category: "Allergy", Description: "Allergy medication for seasonal allergies. Demand peaks during high pollen seasons and humidity changes."},
	{ID: "decongestant", Name: "Decongestant", Category: "Respiratory", Description: "Nasal decongestant for cold and flu symptoms. Demand increases during temperature drops and high humidity."},
	{ID: "insulin", Name: "Insulin", Category: "Diabetes", Description: "Diabetes medication for blood sugar control. Demand affected by temperature extremes and pressure changes."},
	{ID: "bronchodilator", Name: "Bronchodilator", Category: "Respiratory", Description: "Asthma medication for airway opening. Demand increases during low visibility and high pollution days."},
}

var DemoMunicipalities = []models.Municipality{
	{ID: "0301", Name: "Oslo", Region: "Oslo"},
	{ID: "1121", Name: "Time", Region: "Rogaland"},
	{ID: "1134", Name: "Suldal", Region: "Rogaland"},
	{ID: "1812", Name: "Sømna", Region: "Nordland"},
	{ID: "3403", Name: "Hamar", Region: "Innlandet"},
	{ID: "3416", Name: "Eidskog", Region: "Innlandet"},
	{ID: "3424", Name: "Rendalen", Region: "Innlandet"},
	{ID: "3434", Name: "Lom", Region: "Innlandet"},
	{ID: "3440", Name: "Øyer", Region: "Innlandet"},
	{ID: "4003", Name: "Skien", Region: "Telemark"},
	{ID: "4014", Name: "Kragerø", Region: "Telemark"},
	{ID: "4020", Name: "Midt-Telemark", Region: "Telemark"},
	{ID: "4211", Name: "Gjerstad", Region: "Agder"},
	{ID: "4216", Name: "Birkenes", Region: "Agder"},
	{ID: "4226", Name: "Hægebostad", Region: "Agder"},
	{ID: "4639", Name: "Vik", Region: "Vestland"},
	{ID: "5053", Name: "Inderøy", Region: "Trøndelag"},
	{ID: "5060", Name: "Nærøysund", Region: "Trøndelag"},
	{ID: "5514", Name: "Ibestad", Region: "Troms"},
	{ID: "5614", Name: "Loppa", Region: "Finnmark"},
}

const (
	demoWeeks  = 8
	demoMonths = 6
)

// DemoPredictions generates a reproducible prediction set: the same seed
// and now always produce the same records. The last period of each series
// carries a confidence; the rest are history.
func DemoPredictions(seed uint64, now time.Time) []models.Prediction {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	now = now.UTC().Truncate(time.Second)
	year, week := now.ISOWeek()
	month := int(now.Month())

	var preds []models.Prediction
	for _, med := range DemoMedications {
		for _, muni := range DemoMunicipalities {
			// weekly demand sits roughly within 5-90, monthly within 30-380
			base := 10 + rng.Float64()*55
			preds = append(preds, demoSeries(rng, med.ID, muni.ID, models.PeriodWeekly, week, demoWeeks, base, func(idx int) string {
				return isoWeekStart(year, idx).Format("2006-01-02")
			}, now)...)

			base = 50 + rng.Float64()*230
			preds = append(preds, demoSeries(rng, med.ID, muni.ID, models.PeriodMonthly, month, demoMonths, base, func(idx int) string {
				return fmt.Sprintf("%d-%02d", now.Year(), idx)
			}, now)...)
		}
	}
	return preds
}

// demoSeries covers the n periods ending at end, clipped at period 1.
func demoSeries(rng *rand.Rand, medID, muniID string, period models.PeriodType, end, n int, base float64, date func(int) string, now time.Time) []models.Prediction {
	out := make([]models.Prediction, 0, n)
	start := end - n + 1
	if start < 1 {
		start = 1
	}
	for idx := start; idx <= end; idx++ {
		v := base * (0.75 + rng.Float64()*0.5)
		p := models.Prediction{
			MedicationID:   medID,
			MunicipalityID: muniID,
			PeriodType:     period,
			PeriodIndex:    idx,
			Value:          math.Round(v*10) / 10,
			Date:           date(idx),
			CreatedAt:      now,
		}
		if idx == end {
			c := float64(80 + rng.IntN(20))
			p.Confidence = &c
			temp := math.Round((rng.Float64()*30-10)*10) / 10
			hum := float64(40 + rng.IntN(55))
			p.Temperature, p.Humidity = &temp, &hum
		}
		p.ID = p.Key().String()
		out = append(out, p)
	}
	return out
}

func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7)
}

// SeedStats summarizes a Seed call.
type SeedStats struct {
	Medications    int
	Municipalities int
	Predictions    int
}

// Seed writes demo reference data and predictions into the store.
func Seed(ctx context.Context, st *store.Store, seed uint64, now time.Time) (SeedStats, error) {
	var stats SeedStats
	for _, m := range DemoMedications {
		if err := st.UpsertMedication(ctx, m); err != nil {
			return stats, fmt.Errorf("seed medication %s: %w", m.ID, err)
		}
		stats.Medications++
	}
	for _, m := range DemoMunicipalities {
		if err := st.UpsertMunicipality(ctx, m); err != nil {
			return stats, fmt.Errorf("seed municipality %s: %w", m.ID, err)
		}
		stats.Municipalities++
	}
	for _, p := range DemoPredictions(seed, now) {
		written, err := st.UpsertPrediction(ctx, p)
		if err != nil {
			return stats, err
		}
		if written {
			stats.Predictions++
		}
	}
	return stats, nil
}
