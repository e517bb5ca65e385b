package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/medcast/internal/cache"
	"github.com/lox/medcast/internal/models"
	"github.com/lox/medcast/internal/store"
)

func intp(v int) *int              { return &v }
func fp(v float64) *float64        { return &v }
func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestValidatePrediction(t *testing.T) {
	valid := func() wirePrediction {
		return wirePrediction{
			MedicationID:   "aspirin",
			MunicipalityID: "0301",
			PeriodType:     "weekly",
			WeekNumber:     intp(12),
			PredictedValue: fp(42),
			CreatedAt:      raw(`"2024-03-01T10:00:00Z"`),
		}
	}

	tests := []struct {
		name   string
		mutate func(*wirePrediction)
		reason string
	}{
		{"valid", func(*wirePrediction) {}, ""},
		{"missing medication", func(w *wirePrediction) { w.MedicationID = "" }, ReasonMissingMedication},
		{"missing municipality", func(w *wirePrediction) { w.MunicipalityID = " " }, ReasonMissingMunicipality},
		{"unknown period type", func(w *wirePrediction) { w.PeriodType = "daily" }, ReasonInvalidPeriodType},
		{"weekly without week number", func(w *wirePrediction) { w.WeekNumber = nil; w.MonthNumber = intp(3) }, ReasonMissingPeriodIndex},
		{"week 54", func(w *wirePrediction) { w.WeekNumber = intp(54) }, ReasonPeriodOutOfRange},
		{"week 0", func(w *wirePrediction) { w.WeekNumber = intp(0) }, ReasonPeriodOutOfRange},
		{"no value", func(w *wirePrediction) { w.PredictedValue = nil }, ReasonMissingValue},
		{"legacy y value", func(w *wirePrediction) { w.PredictedValue = nil; w.Y = fp(7) }, ""},
		{"negative value", func(w *wirePrediction) { w.PredictedValue = fp(-1) }, ReasonInvalidValue},
		{"bad createdAt", func(w *wirePrediction) { w.CreatedAt = raw(`"yesterday"`) }, ReasonInvalidCreatedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid()
			tt.mutate(&w)
			_, err := ValidatePrediction(w)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			var rej Rejection
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.reason, rej.Reason)
		})
	}
}

func TestValidatePrediction_Fields(t *testing.T) {
	p, err := ValidatePrediction(wirePrediction{
		MedicationID:   "insulin",
		MunicipalityID: "4003",
		PeriodType:     "monthly",
		MonthNumber:    intp(4),
		PredictedValue: fp(150),
		Y:              fp(1),
		Confidence:     fp(0.87),
		WeatherParams:  &wireWeather{Temperature: fp(-3.5), Humidity: fp(81)},
		CreatedAt:      raw(`{"seconds": 1709287200, "nanoseconds": 0}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodMonthly, p.PeriodType)
	assert.Equal(t, 4, p.PeriodIndex)
	assert.Equal(t, 150.0, p.Value, "predictedValue wins over y")
	require.NotNil(t, p.Confidence)
	assert.InDelta(t, 87, *p.Confidence, 1e-9)
	assert.Equal(t, -3.5, *p.Temperature)
	assert.Equal(t, "insulin_4003_monthly_4", p.ID)
	assert.Equal(t, time.Unix(1709287200, 0).UTC(), p.CreatedAt)
}

func TestNormalizeConfidence(t *testing.T) {
	assert.Nil(t, normalizeConfidence(nil))
	assert.Equal(t, 92.0, *normalizeConfidence(fp(92)))
	assert.InDelta(t, 80, *normalizeConfidence(fp(0.8)), 1e-9)
	assert.Equal(t, 0.0, *normalizeConfidence(fp(0)))
	assert.Nil(t, normalizeConfidence(fp(140)))
	assert.Nil(t, normalizeConfidence(fp(-5)))
}

func TestParseCreatedAt(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{`"2024-03-01T10:00:00Z"`, want, false},
		{`"2024-03-01T11:00:00+01:00"`, want, false},
		{`{"_seconds": 1709287200, "_nanoseconds": 0}`, want, false},
		{`1709287200000`, want, false},
		{`null`, time.Time{}, false},
		{``, time.Time{}, false},
		{`{"foo": 1}`, time.Time{}, true},
		{`"not a time"`, time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseCreatedAt(raw(tt.in))
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "parseCreatedAt(%s) = %v", tt.in, got)
	}
}

func TestDecodeList(t *testing.T) {
	bare, err := decodeList[wireMedication]([]byte(`[{"id":"aspirin","name":"Aspirin"}]`), "medications")
	require.NoError(t, err)
	require.Len(t, bare, 1)

	wrapped, err := decodeList[wireMedication]([]byte(` {"medications":[{"id":"a"},{"id":"b"}]}`), "medications")
	require.NoError(t, err)
	assert.Len(t, wrapped, 2)

	_, err = decodeList[wireMedication]([]byte(`{"items":[]}`), "medications")
	assert.Error(t, err)

	_, err = decodeList[wireMedication]([]byte(``), "medications")
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id, muni string, idx int, v float64, created time.Time) models.Prediction {
		return models.Prediction{ID: id, MedicationID: "aspirin", MunicipalityID: muni, PeriodType: models.PeriodWeekly, PeriodIndex: idx, Value: v, CreatedAt: created}
	}

	out, groups := Reconcile([]models.Prediction{
		mk("a1", "0301", 10, 10, base),
		mk("b1", "4003", 10, 30, base),
		mk("a2", "0301", 10, 20, base.Add(time.Hour)),
		mk("a3", "0301", 10, 5, base.Add(-time.Hour)),
		mk("b2", "4003", 10, 31, base),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "a2", out[0].ID, "newest createdAt wins")
	assert.Equal(t, "b1", out[1].ID, "first seen wins a tie")

	require.Len(t, groups, 2)
	assert.Equal(t, "a2", groups[0].Kept.ID)
	assert.Len(t, groups[0].Discarded, 2)
	assert.Equal(t, "b2", groups[1].Discarded[0].ID)

	none, dups := Reconcile(nil)
	assert.Empty(t, none)
	assert.Empty(t, dups)
}

func TestDemoPredictions_Deterministic(t *testing.T) {
	now := time.Date(2025, 1, 22, 9, 0, 0, 0, time.UTC)
	a := DemoPredictions(7, now)
	b := DemoPredictions(7, now)
	c := DemoPredictions(8, now)

	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, dups := Reconcile(a)
	assert.Empty(t, dups, "demo data has one record per key")

	for _, p := range a {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.PeriodIndex, p.PeriodType.MaxIndex())
		assert.GreaterOrEqual(t, p.PeriodIndex, 1)
	}
}

type fakeBackend struct {
	predictionCalls atomic.Int32
	medicationCalls atomic.Int32
	failFirst       atomic.Bool
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /medications", func(w http.ResponseWriter, r *http.Request) {
		f.medicationCalls.Add(1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"aspirin","name":"Aspirin","description":"<p>Pain &amp; fever</p>"}]`))
	})
	mux.HandleFunc("GET /municipalities", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"municipalities":[{"id":"0301","name":"Oslo","county":"Oslo"},{"id":"4003","name":"Skien"}]}`))
	})
	mux.HandleFunc("GET /predictions", func(w http.ResponseWriter, r *http.Request) {
		f.predictionCalls.Add(1)
		if f.failFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.URL.Query().Get("periodType") == "monthly" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`{"predictions":[
			{"medicationId":"aspirin","municipalityId":"0301","periodType":"weekly","weekNumber":9,"y":20,"createdAt":"2024-03-01T00:00:00Z"},
			{"medicationId":"aspirin","municipalityId":"0301","periodType":"weekly","weekNumber":10,"predictedValue":35,"confidence":0.9,"createdAt":"2024-03-01T00:00:00Z"},
			{"medicationId":"aspirin","municipalityId":"0301","periodType":"weekly","weekNumber":10,"predictedValue":38,"confidence":91,"createdAt":"2024-03-02T00:00:00Z"},
			{"medicationId":"aspirin","municipalityId":"4003","periodType":"weekly","weekNumber":10,"createdAt":"2024-03-02T00:00:00Z"},
			{"municipalityId":"4003","periodType":"weekly","weekNumber":10,"y":3}
		]}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeBackend, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", append([]Option{WithMaxElapsed(5 * time.Second)}, opts...)...)
}

func TestClient_Predictions(t *testing.T) {
	f := &fakeBackend{}
	f.failFirst.Store(true)
	client := newTestClient(t, f)

	batch, err := client.Predictions(context.Background(), PredictionQuery{MedicationID: "aspirin", PeriodType: models.PeriodWeekly})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.predictionCalls.Load(), "rate limited call is retried")
	assert.Equal(t, http.StatusOK, batch.HTTPStatus)
	assert.Equal(t, 5, batch.RecordCount)
	assert.Len(t, batch.Predictions, 3)
	require.Len(t, batch.Rejected, 2)
	assert.Equal(t, ReasonMissingValue, batch.Rejected[0].Reason)
	assert.Equal(t, ReasonMissingMedication, batch.Rejected[1].Reason)
}

func TestClient_PermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Medications(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_ReferenceDataIsCached(t *testing.T) {
	f := &fakeBackend{}
	mem := cache.NewMemory(16, clockwork.NewFakeClock())
	client := newTestClient(t, f, WithCache(mem))
	ctx := context.Background()

	for range 3 {
		meds, err := client.Medications(ctx)
		require.NoError(t, err)
		require.Len(t, meds, 1)
		assert.Equal(t, "Pain & fever", meds[0].Description)
	}
	assert.Equal(t, int32(1), f.medicationCalls.Load())

	munis, err := client.Municipalities(ctx)
	require.NoError(t, err)
	require.Len(t, munis, 2)
	assert.Equal(t, "Oslo", munis[0].Region)
}

func TestScheduler_SyncOnce(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, nil)
	require.NoError(t, st.Migrate())

	f := &fakeBackend{}
	sched := NewScheduler(st, newTestClient(t, f), WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()

	stats, err := sched.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Medications)
	assert.Equal(t, 2, stats.Municipalities)
	assert.Equal(t, 5, stats.Fetched)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Zero(t, stats.Failures)

	preds, err := st.ListPredictions(ctx, store.PredictionFilter{MedicationID: "aspirin", PeriodType: models.PeriodWeekly})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 38.0, preds[1].Value)

	last, err := st.LastSuccessfulRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)

	again, err := sched.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Stored, "equal createdAt rewrites the same rows")
	count, err := st.CountPredictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSeed(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, nil)
	require.NoError(t, st.Migrate())

	stats, err := Seed(context.Background(), st, 1, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, len(DemoMedications), stats.Medications)
	assert.Equal(t, len(DemoMunicipalities), stats.Municipalities)
	assert.Equal(t, len(DemoMedications)*len(DemoMunicipalities)*(demoWeeks+3), stats.Predictions)
}
