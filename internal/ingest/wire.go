package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// wirePrediction is the backend's prediction document. Older documents
// carry the demand value in "y" and the period index in weekNumber or
// monthNumber, and may report confidence as a fraction.
type wirePrediction struct {
	ID             string          `json:"id"`
	MedicationID   string          `json:"medicationId"`
	MunicipalityID string          `json:"municipalityId"`
	PeriodType     string          `json:"periodType"`
	WeekNumber     *int            `json:"weekNumber"`
	MonthNumber    *int            `json:"monthNumber"`
	PredictedValue *float64        `json:"predictedValue"`
	Y              *float64        `json:"y"`
	Date           string          `json:"date"`
	Confidence     *float64        `json:"confidence"`
	Label          string          `json:"label"`
	WeatherParams  *wireWeather    `json:"weatherParams"`
	CreatedAt      json.RawMessage `json:"createdAt"`
}

type wireWeather struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

type wireMedication struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type wireMunicipality struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	County string `json:"county"`
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	raw, ok := wrapper[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q field", key)
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return items, nil
}

// parseCreatedAt reads an RFC 3339 string, epoch milliseconds, or a
// document-store timestamp object ({"seconds","nanoseconds"} or
// {"_seconds","_nanoseconds"}). A missing value yields the zero time.
func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, nil
	}

	switch s[0] {
	case '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, err
		}
		if str == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse createdAt %q: %w", str, err)
		}
		return t.UTC(), nil
	case '{':
		var ts struct {
			Seconds      *int64 `json:"seconds"`
			Nanoseconds  int64  `json:"nanoseconds"`
			USeconds     *int64 `json:"_seconds"`
			UNanoseconds int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(raw, &ts); err != nil {
			return time.Time{}, err
		}
		switch {
		case ts.Seconds != nil:
			return time.Unix(*ts.Seconds, ts.Nanoseconds).UTC(), nil
		case ts.USeconds != nil:
			return time.Unix(*ts.USeconds, ts.UNanoseconds).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("createdAt object has no seconds")
	default:
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, fmt.Errorf("parse createdAt %s: %w", s, err)
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
}
