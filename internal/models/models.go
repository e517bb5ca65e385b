package models

import (
	"fmt"
	"time"
)

// PeriodType is the aggregation unit of a prediction.
type PeriodType string

const (
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

// ParsePeriodType accepts "weekly" or "monthly".
func ParsePeriodType(s string) (PeriodType, bool) {
	switch PeriodType(s) {
	case PeriodWeekly, PeriodMonthly:
		return PeriodType(s), true
	}
	return "", false
}

func (p PeriodType) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// Noun is the singular label prefix, "Week" or "Month".
func (p PeriodType) Noun() string {
	if p == PeriodMonthly {
		return "Month"
	}
	return "Week"
}

// Title is the display name used in exports.
func (p PeriodType) Title() string {
	if p == PeriodMonthly {
		return "Monthly"
	}
	return "Weekly"
}

// MaxIndex is the largest period number in a year.
func (p PeriodType) MaxIndex() int {
	if p == PeriodMonthly {
		return 12
	}
	return 53
}

type Medication struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type Municipality struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"` // county
}

// DisplayName falls back to the id when no name is known.
func (m Municipality) DisplayName() string {
	if m.Name == "" {
		return m.ID
	}
	return m.Name
}

// Prediction is one observed or forecast demand value for a municipality and period.
type Prediction struct {
	ID             string     `json:"id"`
	MedicationID   string     `json:"medicationId"`
	MunicipalityID string     `json:"municipalityId"`
	PeriodType     PeriodType `json:"periodType"`
	PeriodIndex    int        `json:"periodIndex"`
	Value          float64    `json:"value"`
	Date           string     `json:"date,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"` // percent, 0-100
	Label          string     `json:"label,omitempty"`
	Temperature    *float64   `json:"temperature,omitempty"`
	Humidity       *float64   `json:"humidity,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// PredictionKey identifies a prediction slot. At most one prediction is kept per key.
type PredictionKey struct {
	MedicationID   string
	MunicipalityID string
	PeriodType     PeriodType
	PeriodIndex    int
}

func (p Prediction) Key() PredictionKey {
	return PredictionKey{
		MedicationID:   p.MedicationID,
		MunicipalityID: p.MunicipalityID,
		PeriodType:     p.PeriodType,
		PeriodIndex:    p.PeriodIndex,
	}
}

// String formats the key as medication_municipality_period_index, which is
// also used as the document id for predictions that arrive without one.
func (k PredictionKey) String() string {
	return fmt.Sprintf("%s_%s_%s_%d", k.MedicationID, k.MunicipalityID, k.PeriodType, k.PeriodIndex)
}
