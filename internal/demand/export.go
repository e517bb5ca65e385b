package demand

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lox/medcast/internal/models"
)

type ExportOptions struct {
	IncludeConfidence  bool
	IncludeOutlierFlag bool
}

// Table is a header row plus data rows of equal width.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ExportRequest is the selection an export is built from. Records may span
// municipalities; they are narrowed to the medication and period type here.
type ExportRequest struct {
	Medication models.Medication
	Period     models.PeriodType
	Records    []models.Prediction
	Options    ExportOptions
}

func (r ExportRequest) medicationName() string {
	if r.Medication.Name != "" {
		return r.Medication.Name
	}
	return r.Medication.ID
}

// BuildTable produces one row per region, in the order given. Each row
// describes the region's latest period; regions without records get empty
// value cells.
func BuildTable(req ExportRequest, regions []models.Municipality) Table {
	headers := []string{"Municipality", "Demand (units)", "Change (%)"}
	headers = withOptional(headers, req.Options, "Confidence (%)", "Outlier Status")
	headers = append(headers, "Date Range", "Medication", "Prediction Type")

	t := Table{Headers: headers, Rows: make([][]string, 0, len(regions))}
	for _, region := range regions {
		sel := Select(req.Records, req.Medication.ID, region.ID, req.Period)

		var demand, change, confidence, outlier, dateRange string
		if n := len(sel); n > 0 {
			latest := sel[n-1]
			demand = formatNumber(latest.Value)
			if n > 1 && sel[n-2].Value != 0 {
				change = formatPercent((latest.Value - sel[n-2].Value) / sel[n-2].Value * 100)
			}
			confidence = formatOptional(latest.Confidence)
			outlier = string(ClassifyOutlier(values(sel[:n-1]), latest.Value))
			dateRange = periodSpan(sel[0], latest)
		}

		row := []string{region.DisplayName(), demand, change}
		row = withOptional(row, req.Options, confidence, outlier)
		row = append(row, dateRange, req.medicationName(), req.Period.Title())
		t.Rows = append(t.Rows, row)
	}
	return t
}

// BuildRecordTable produces one row per record of the medication and period
// type, ordered by period index. Outlier status compares each record with the
// earlier periods of the same municipality.
func BuildRecordTable(req ExportRequest, names map[string]string) Table {
	headers := []string{"Municipality", "Period", "Date", "Demand (units)"}
	headers = withOptional(headers, req.Options, "Confidence (%)", "Outlier Status")
	headers = append(headers, "Medication", "Prediction Type")

	sel := SelectMedication(req.Records, req.Medication.ID, req.Period)
	history := make(map[string][]float64)

	t := Table{Headers: headers, Rows: make([][]string, 0, len(sel))}
	for _, r := range sel {
		outlier := string(ClassifyOutlier(history[r.MunicipalityID], r.Value))
		history[r.MunicipalityID] = append(history[r.MunicipalityID], r.Value)

		row := []string{
			regionName(names, r.MunicipalityID),
			Label(r.PeriodType, r.PeriodIndex),
			r.Date,
			formatNumber(r.Value),
		}
		row = withOptional(row, req.Options, formatOptional(r.Confidence), outlier)
		row = append(row, req.medicationName(), req.Period.Title())
		t.Rows = append(t.Rows, row)
	}
	return t
}

// withOptional appends the confidence and outlier cells enabled by opts.
func withOptional(row []string, opts ExportOptions, confidence, outlier string) []string {
	if opts.IncludeConfidence {
		row = append(row, confidence)
	}
	if opts.IncludeOutlierFlag {
		row = append(row, outlier)
	}
	return row
}

func values(records []models.Prediction) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Value
	}
	return out
}

func periodSpan(first, last models.Prediction) string {
	from, to := first.Date, last.Date
	if from == "" || to == "" {
		from = Label(first.PeriodType, first.PeriodIndex)
		to = Label(last.PeriodType, last.PeriodIndex)
	}
	if from == to {
		return from
	}
	return from + " - " + to
}

func formatNumber(v float64) string {
	if !finite(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(v float64) string {
	if !finite(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}

// WriteCSV writes the table with RFC 4180 quoting.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Filename builds medication-demand-<slug>-<period>-<YYYY-MM-DD>.<ext>.
func Filename(medicationName string, period models.PeriodType, date time.Time, ext string) string {
	slug := slugify(medicationName)
	if slug == "" {
		slug = "all"
	}
	return fmt.Sprintf("medication-demand-%s-%s-%s.%s", slug, period, date.Format("2006-01-02"), ext)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
