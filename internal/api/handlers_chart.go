package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/medcast/internal/chart"
	"github.com/lox/medcast/internal/demand"
	"github.com/lox/medcast/internal/httputil"
	"github.com/lox/medcast/internal/metrics"
	"github.com/lox/medcast/internal/narrative"
)

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sel, series, ok := s.series(w, r)
	if !ok {
		return
	}
	view := demand.ParseViewMode(r.URL.Query().Get("view"))
	points := demand.Normalize(series.View(view))

	req := s.narrativeRequest(r, sel, series)
	title := fmt.Sprintf("%s - %s (%s)", req.Medication, req.Municipality, sel.Period.Title())

	// The key covers everything drawn so a sync or rename invalidates stale charts.
	key := chartKey(title, points)
	if data, ok := s.charts.Get(key); ok {
		metrics.ChartRenders.WithLabelValues("hit").Inc()
		servePNG(w, data)
		return
	}

	data, err := chart.Render(title, points)
	if err != nil {
		s.log.Error("render chart", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "chart rendering failed")
		return
	}
	metrics.ChartRenders.WithLabelValues("miss").Inc()
	s.charts.Set(key, data)
	servePNG(w, data)
}

func chartKey(title string, points []demand.NormalizedPoint) string {
	var b strings.Builder
	b.WriteString(title)
	for _, p := range points {
		fmt.Fprintf(&b, "|%d:%s:%s", p.Point.X, p.Point.Label, strconv.FormatFloat(p.Point.Y, 'g', -1, 64))
		if p.Point.Confidence != nil {
			b.WriteString(":u")
		}
	}
	return b.String()
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

// narrativeRequest resolves display names for a selection. Unknown ids are
// used as their own names.
func (s *Server) narrativeRequest(r *http.Request, sel selection, series demand.Series) narrative.Request {
	req := narrative.Request{
		Medication:   sel.MedicationID,
		Municipality: sel.MunicipalityID,
		Period:       sel.Period,
		Series:       series,
	}
	if med, err := s.store.GetMedication(r.Context(), sel.MedicationID); err == nil && med != nil {
		req.Medication = med.Name
	}
	if munis, err := s.store.ListMunicipalities(r.Context()); err == nil {
		if name, ok := demand.RegionNames(munis)[sel.MunicipalityID]; ok {
			req.Municipality = name
		}
	}
	return req
}
