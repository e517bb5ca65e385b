package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lox/medcast/internal/models"
)

// selection is the medication, optional municipality and period type named
// by a request's query string.
type selection struct {
	MedicationID   string
	MunicipalityID string
	Period         models.PeriodType
}

func parseSelection(r *http.Request, requireMunicipality bool) (selection, error) {
	q := r.URL.Query()
	sel := selection{
		MedicationID:   strings.TrimSpace(q.Get("medicationId")),
		MunicipalityID: strings.TrimSpace(q.Get("municipalityId")),
	}
	if sel.MedicationID == "" {
		return sel, fmt.Errorf("medicationId is required")
	}
	if requireMunicipality && sel.MunicipalityID == "" {
		return sel, fmt.Errorf("municipalityId is required")
	}

	period := q.Get("periodType")
	if period == "" {
		period = string(models.PeriodWeekly)
	}
	p, ok := models.ParsePeriodType(period)
	if !ok {
		return sel, fmt.Errorf("invalid periodType %q", period)
	}
	sel.Period = p
	return sel, nil
}

// intParam returns def when the parameter is absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range strings.Split(r.URL.Query().Get(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
