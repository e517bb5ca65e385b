package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/lox/medcast/internal/auth"
	"github.com/lox/medcast/internal/demand"
	"github.com/lox/medcast/internal/export"
	"github.com/lox/medcast/internal/httputil"
	"github.com/lox/medcast/internal/metrics"
	"github.com/lox/medcast/internal/models"
)

// requestError carries the status code for a failed export build.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func badRequest(err error) *requestError  { return &requestError{http.StatusBadRequest, err} }
func serverError(err error) *requestError { return &requestError{http.StatusInternalServerError, err} }

// buildExport reads the export query. A municipalityId without a regions
// list exports that one municipality.
func (s *Server) buildExport(r *http.Request) (*export.File, *requestError) {
	sel, err := parseSelection(r, false)
	if err != nil {
		return nil, badRequest(err)
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return nil, badRequest(err)
	}
	mode, err := export.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return nil, badRequest(err)
	}
	regions := listParam(r, "regions")
	if len(regions) == 0 && sel.MunicipalityID != "" {
		regions = []string{sel.MunicipalityID}
	}

	ctx := r.Context()
	med, err := s.store.GetMedication(ctx, sel.MedicationID)
	if err != nil {
		return nil, serverError(err)
	}
	if med == nil {
		med = &models.Medication{ID: sel.MedicationID}
	}
	munis, err := s.store.ListMunicipalities(ctx)
	if err != nil {
		return nil, serverError(err)
	}
	records, err := s.records(r, selection{MedicationID: sel.MedicationID, Period: sel.Period})
	if err != nil {
		return nil, serverError(err)
	}

	f, err := export.Build(export.Query{
		Medication: *med,
		Period:     sel.Period,
		Format:     format,
		Mode:       mode,
		Regions:    regions,
		Options: demand.ExportOptions{
			IncludeConfidence:  boolParam(r, "confidence"),
			IncludeOutlierFlag: boolParam(r, "outliers"),
		},
	}, munis, records, s.clock.Now())
	if err != nil {
		return nil, serverError(err)
	}
	return f, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, rerr := s.buildExport(r)
	if rerr != nil {
		httputil.WriteError(w, rerr.status, rerr.Error())
		return
	}
	metrics.ExportsTotal.WithLabelValues(string(f.Format), string(f.Mode), "download").Inc()

	w.Header().Set("Content-Type", f.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.Name))
	w.Write(f.Data)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no export sink configured")
		return
	}
	f, rerr := s.buildExport(r)
	if rerr != nil {
		httputil.WriteError(w, rerr.status, rerr.Error())
		return
	}

	location, err := s.sink.Put(r.Context(), f.Name, f.Data)
	if err != nil {
		s.log.Error("publish export", zap.String("file", f.Name), zap.Error(err))
		httputil.WriteError(w, http.StatusBadGateway, "publish failed")
		return
	}
	metrics.ExportsTotal.WithLabelValues(string(f.Format), string(f.Mode), s.sink.Name()).Inc()

	subject, _ := auth.SubjectFromContext(r.Context())
	s.log.Info("published export",
		zap.String("file", f.Name),
		zap.String("location", location),
		zap.String("subject", subject))
	s.writeJSON(w, http.StatusCreated, map[string]string{"filename": f.Name, "location": location})
}
