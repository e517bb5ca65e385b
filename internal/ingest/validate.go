package ingest

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lox/medcast/internal/htmlutil"
	"github.com/lox/medcast/internal/models"
)

// ErrMalformed marks a backend record that cannot enter the core.
var ErrMalformed = errors.New("malformed prediction")

const (
	ReasonMissingMedication   = "missing_medication_id"
	ReasonMissingMunicipality = "missing_municipality_id"
	ReasonInvalidPeriodType   = "invalid_period_type"
	ReasonMissingPeriodIndex  = "missing_period_index"
	ReasonPeriodOutOfRange    = "period_index_out_of_range"
	ReasonMissingValue        = "missing_value"
	ReasonInvalidValue        = "invalid_value"
	ReasonInvalidCreatedAt    = "invalid_created_at"
)

// Rejection records why a backend record was dropped.
type Rejection struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

func (r Rejection) Error() string {
	if r.ID == "" {
		return fmt.Sprintf("%s: %s", ErrMalformed, r.Reason)
	}
	return fmt.Sprintf("%s %s: %s", ErrMalformed, r.ID, r.Reason)
}

func (r Rejection) Unwrap() error { return ErrMalformed }

// ValidatePrediction converts a wire record into a Prediction. The first
// failed check is returned as a Rejection.
func ValidatePrediction(w wirePrediction) (models.Prediction, error) {
	reject := func(reason string) (models.Prediction, error) {
		return models.Prediction{}, Rejection{ID: w.ID, Reason: reason}
	}

	if strings.TrimSpace(w.MedicationID) == "" {
		return reject(ReasonMissingMedication)
	}
	if strings.TrimSpace(w.MunicipalityID) == "" {
		return reject(ReasonMissingMunicipality)
	}

	period, ok := models.ParsePeriodType(w.PeriodType)
	if !ok {
		return reject(ReasonInvalidPeriodType)
	}

	var index *int
	switch period {
	case models.PeriodWeekly:
		index = w.WeekNumber
	case models.PeriodMonthly:
		index = w.MonthNumber
	}
	if index == nil {
		return reject(ReasonMissingPeriodIndex)
	}
	if *index < 1 || *index > period.MaxIndex() {
		return reject(ReasonPeriodOutOfRange)
	}

	value := w.PredictedValue
	if value == nil {
		value = w.Y
	}
	if value == nil {
		return reject(ReasonMissingValue)
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) || *value < 0 {
		return reject(ReasonInvalidValue)
	}

	createdAt, err := parseCreatedAt(w.CreatedAt)
	if err != nil {
		return reject(ReasonInvalidCreatedAt)
	}

	p := models.Prediction{
		ID:             w.ID,
		MedicationID:   w.MedicationID,
		MunicipalityID: w.MunicipalityID,
		PeriodType:     period,
		PeriodIndex:    *index,
		Value:          *value,
		Date:           w.Date,
		Confidence:     normalizeConfidence(w.Confidence),
		Label:          w.Label,
		CreatedAt:      createdAt,
	}
	if w.WeatherParams != nil {
		p.Temperature = w.WeatherParams.Temperature
		p.Humidity = w.WeatherParams.Humidity
	}
	if p.ID == "" {
		p.ID = p.Key().String()
	}
	return p, nil
}

// normalizeConfidence scales fractional confidence to percent. Values
// outside 0-100 are dropped.
func normalizeConfidence(c *float64) *float64 {
	if c == nil || math.IsNaN(*c) {
		return nil
	}
	v := *c
	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 || v > 100 {
		return nil
	}
	return &v
}

func cleanMedication(w wireMedication) models.Medication {
	return models.Medication{
		ID:          w.ID,
		Name:        strings.TrimSpace(w.Name),
		Description: htmlutil.ToText(w.Description),
		Category:    strings.TrimSpace(w.Category),
	}
}

func cleanMunicipality(w wireMunicipality) models.Municipality {
	region := w.Region
	if region == "" {
		region = w.County
	}
	return models.Municipality{
		ID:     w.ID,
		Name:   strings.TrimSpace(w.Name),
		Region: strings.TrimSpace(region),
	}
}
