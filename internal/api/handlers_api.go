package api

import (
	"net/http"

	"github.com/lox/medcast/internal/demand"
	"github.com/lox/medcast/internal/httputil"
	"github.com/lox/medcast/internal/models"
	"github.com/lox/medcast/internal/store"
)

func (s *Server) handleMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := s.store.ListMedications(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if meds == nil {
		meds = []models.Medication{}
	}
	s.writeJSON(w, http.StatusOK, meds)
}

func (s *Server) handleMunicipalities(w http.ResponseWriter, r *http.Request) {
	munis, err := s.store.ListMunicipalities(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if munis == nil {
		munis = []models.Municipality{}
	}
	s.writeJSON(w, http.StatusOK, munis)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r, false)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.records(r, sel)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sel.MunicipalityID != "" {
		records = demand.Select(records, sel.MedicationID, sel.MunicipalityID, sel.Period)
	} else {
		records = demand.SelectMedication(records, sel.MedicationID, sel.Period)
	}
	s.writeJSON(w, http.StatusOK, records)
}

type seriesResponse struct {
	MedicationID   string                   `json:"medicationId"`
	MunicipalityID string                   `json:"municipalityId"`
	PeriodType     models.PeriodType        `json:"periodType"`
	View           demand.ViewMode          `json:"view"`
	Series         demand.Series            `json:"series"`
	Points         []demand.NormalizedPoint `json:"points"`
	Summary        demand.Summary           `json:"summary"`
	Windows        []demand.HistoryWindow   `json:"windows"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	sel, series, ok := s.series(w, r)
	if !ok {
		return
	}
	view := demand.ParseViewMode(r.URL.Query().Get("view"))
	s.writeJSON(w, http.StatusOK, seriesResponse{
		MedicationID:   sel.MedicationID,
		MunicipalityID: sel.MunicipalityID,
		PeriodType:     sel.Period,
		View:           view,
		Series:         series,
		Points:         demand.Normalize(series.View(view)),
		Summary:        demand.Summarize(series),
		Windows:        demand.HistoryWindows(sel.Period),
	})
}

// series loads and builds the series for a request, writing an error
// response and returning false when it cannot.
func (s *Server) series(w http.ResponseWriter, r *http.Request) (selection, demand.Series, bool) {
	sel, err := parseSelection(r, true)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return sel, demand.Series{}, false
	}
	window, err := intParam(r, "window", 0)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return sel, demand.Series{}, false
	}
	records, err := s.records(r, sel)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return sel, demand.Series{}, false
	}
	series := demand.BuildSeries(demand.Select(records, sel.MedicationID, sel.MunicipalityID, sel.Period))
	return sel, series.TrimHistory(window), true
}

type heatmapResponse struct {
	MedicationID string               `json:"medicationId"`
	PeriodType   models.PeriodType    `json:"periodType"`
	PeriodIndex  int                  `json:"periodIndex"`
	Periods      []int                `json:"periods"`
	Regions      []demand.RegionColor `json:"regions"`
	Legend       []demand.LegendEntry `json:"legend"`
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, heatmapResponse{
		MedicationID: snap.sel.MedicationID,
		PeriodType:   snap.sel.Period,
		PeriodIndex:  snap.index,
		Periods:      snap.periods,
		Regions:      demand.Choropleth(snap.current, snap.names, snap.sel.Period),
		Legend:       demand.Legend(snap.sel.Period),
	})
}

type increasesResponse struct {
	MedicationID  string               `json:"medicationId"`
	PeriodType    models.PeriodType    `json:"periodType"`
	PeriodIndex   int                  `json:"periodIndex"`
	PreviousIndex int                  `json:"previousIndex,omitempty"`
	Increases     []demand.DemandDelta `json:"increases"`
}

func (s *Server) handleTopIncreases(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	k, err := intParam(r, "limit", demand.DefaultTopK)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := increasesResponse{
		MedicationID: snap.sel.MedicationID,
		PeriodType:   snap.sel.Period,
		PeriodIndex:  snap.index,
		Increases:    []demand.DemandDelta{},
	}
	if prevIndex, ok := snap.previousIndex(); ok {
		resp.PreviousIndex = prevIndex
		previous := demand.RegionValues(snap.records, snap.sel.MedicationID, snap.sel.Period, prevIndex)
		resp.Increases = demand.Rank(snap.current, previous, snap.names, k)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type snapshot struct {
	sel     selection
	records []models.Prediction
	periods []int
	index   int
	current demand.RegionValueMap
	names   map[string]string
}

// previousIndex is the closest period with data before the snapshot's.
func (s snapshot) previousIndex() (int, bool) {
	best, ok := 0, false
	for _, p := range s.periods {
		if p < s.index {
			best, ok = p, true
		}
	}
	return best, ok
}

// snapshot loads the per-region values of one period. The period defaults
// to the latest one with data.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (snapshot, bool) {
	sel, err := parseSelection(r, false)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return snapshot{}, false
	}
	records, err := s.records(r, sel)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return snapshot{}, false
	}
	munis, err := s.store.ListMunicipalities(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return snapshot{}, false
	}

	snap := snapshot{
		sel:     sel,
		records: records,
		periods: demand.PeriodIndices(records, sel.MedicationID, sel.Period),
		names:   demand.RegionNames(munis),
	}
	if snap.periods == nil {
		snap.periods = []int{}
	}
	latest := 0
	if n := len(snap.periods); n > 0 {
		latest = snap.periods[n-1]
	}
	snap.index, err = intParam(r, "periodIndex", latest)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return snapshot{}, false
	}
	snap.current = demand.RegionValues(records, sel.MedicationID, sel.Period, snap.index)
	return snap, true
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	sel, series, ok := s.series(w, r)
	if !ok {
		return
	}
	req := s.narrativeRequest(r, sel, series)
	s.writeJSON(w, http.StatusOK, s.narrative.Summarize(r.Context(), req))
}

func (s *Server) records(r *http.Request, sel selection) ([]models.Prediction, error) {
	return s.store.ListPredictions(r.Context(), store.PredictionFilter{
		MedicationID:   sel.MedicationID,
		MunicipalityID: sel.MunicipalityID,
		PeriodType:     sel.Period,
	})
}
