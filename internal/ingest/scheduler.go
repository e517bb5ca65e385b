package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lox/medcast/internal/logging"
	"github.com/lox/medcast/internal/metrics"
	"github.com/lox/medcast/internal/models"
	"github.com/lox/medcast/internal/store"
)

const source = "backend"

// Scheduler periodically copies the backend's reference data and
// predictions into the store.
type Scheduler struct {
	store     *store.Store
	client    *Client
	clock     clockwork.Clock
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
}

type SchedulerOption func(*Scheduler)

func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithRetention sets how long raw backend payloads are kept.
func WithRetention(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.retention = d }
}

func WithSchedulerLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l.Named("scheduler") }
}

func NewScheduler(st *store.Store, client *Client, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     st,
		client:    client,
		clock:     clockwork.NewRealClock(),
		log:       logging.OrNop(nil),
		interval:  30 * time.Minute,
		retention: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncStats summarizes one sync pass.
type SyncStats struct {
	Medications    int
	Municipalities int
	Fetched        int
	Stored         int
	Rejected       int
	Duplicates     int
	Failures       int
}

func (s *Scheduler) Run(ctx context.Context) {
	s.syncAndLog(ctx)
	s.cleanup(ctx)

	syncTicker := s.clock.NewTicker(s.interval)
	cleanupTicker := s.clock.NewTicker(24 * time.Hour)
	defer syncTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting down")
			return
		case <-syncTicker.Chan():
			s.syncAndLog(ctx)
		case <-cleanupTicker.Chan():
			s.cleanup(ctx)
		}
	}
}

func (s *Scheduler) syncAndLog(ctx context.Context) {
	stats, err := s.SyncOnce(ctx)
	if err != nil {
		s.log.Error("sync failed", zap.Error(err))
		return
	}
	s.log.Info("sync complete",
		zap.Int("fetched", stats.Fetched),
		zap.Int("stored", stats.Stored),
		zap.Int("rejected", stats.Rejected),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failures", stats.Failures))
}

func (s *Scheduler) cleanup(ctx context.Context) {
	deleted, err := s.store.CleanupOldRawPayloads(ctx, s.clock.Now().Add(-s.retention))
	if err != nil {
		s.log.Warn("cleanup raw payloads", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.log.Info("cleaned up raw payloads", zap.Int64("deleted", deleted))
	}
}

// SyncOnce refreshes reference data and then fetches predictions for
// every medication and period type. A failed prediction fetch is counted
// and the pass continues; reference data failures abort it.
func (s *Scheduler) SyncOnce(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	meds, err := s.syncMedications(ctx)
	if err != nil {
		return stats, err
	}
	stats.Medications = len(meds)

	munis, err := s.syncMunicipalities(ctx)
	if err != nil {
		return stats, err
	}
	stats.Municipalities = len(munis)

	for _, med := range meds {
		for _, period := range []models.PeriodType{models.PeriodWeekly, models.PeriodMonthly} {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			q := PredictionQuery{MedicationID: med.ID, PeriodType: period}
			if err := s.syncPredictions(ctx, q, &stats); err != nil {
				s.log.Warn("sync predictions", zap.String("scope", q.Scope()), zap.Error(err))
				stats.Failures++
			}
		}
	}
	return stats, nil
}

func (s *Scheduler) syncMedications(ctx context.Context) ([]models.Medication, error) {
	run, _ := s.store.StartIngestRun(ctx, source, "medications", nil)
	meds, err := s.client.Medications(ctx)
	stored := 0
	if err == nil {
		for _, m := range meds {
			if err = s.store.UpsertMedication(ctx, m); err != nil {
				break
			}
			stored++
		}
	}
	s.completeRun(ctx, run, len(meds), stored, err)
	if err != nil {
		return nil, fmt.Errorf("sync medications: %w", err)
	}
	return meds, nil
}

func (s *Scheduler) syncMunicipalities(ctx context.Context) ([]models.Municipality, error) {
	run, _ := s.store.StartIngestRun(ctx, source, "municipalities", nil)
	munis, err := s.client.Municipalities(ctx)
	stored := 0
	if err == nil {
		for _, m := range munis {
			if err = s.store.UpsertMunicipality(ctx, m); err != nil {
				break
			}
			stored++
		}
	}
	s.completeRun(ctx, run, len(munis), stored, err)
	if err != nil {
		return nil, fmt.Errorf("sync municipalities: %w", err)
	}
	return munis, nil
}

func (s *Scheduler) syncPredictions(ctx context.Context, q PredictionQuery, stats *SyncStats) error {
	scope := q.Scope()
	run, _ := s.store.StartIngestRun(ctx, source, "predictions", &scope)

	batch, err := s.client.Predictions(ctx, q)
	if run != nil && batch != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(batch.HTTPStatus), Valid: batch.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(batch.ResponseSize), Valid: batch.ResponseSize > 0}
		if len(batch.Body) > 0 {
			if _, perr := s.store.StoreRawPayload(ctx, &run.ID, source, "predictions", &scope, batch.Body); perr != nil {
				s.log.Warn("store raw payload", zap.Error(perr))
			}
		}
	}
	if err != nil {
		s.completeRun(ctx, run, 0, 0, err)
		return err
	}

	preds, dups := Reconcile(batch.Predictions)
	discarded := 0
	for _, g := range dups {
		discarded += len(g.Discarded)
	}
	metrics.DuplicatesDiscarded.Add(float64(discarded))

	stored := 0
	for _, p := range preds {
		written, err := s.store.UpsertPrediction(ctx, p)
		if err != nil {
			s.completeRun(ctx, run, batch.RecordCount, stored, err)
			return err
		}
		if written {
			stored++
		}
	}
	metrics.PredictionsSynced.WithLabelValues(string(q.PeriodType)).Add(float64(stored))

	stats.Fetched += batch.RecordCount
	stats.Stored += stored
	stats.Rejected += len(batch.Rejected)
	stats.Duplicates += discarded

	if run != nil && len(batch.Rejected) > 0 {
		run.ParseErrors = sql.NullInt64{Int64: int64(len(batch.Rejected)), Valid: true}
		run.ErrorMessage = sql.NullString{String: batch.Rejected[0].Error(), Valid: true}
	}
	s.completeRun(ctx, run, batch.RecordCount, stored, nil)
	return nil
}

func (s *Scheduler) completeRun(ctx context.Context, run *store.IngestRun, parsed, stored int, err error) {
	if run == nil {
		return
	}
	run.Success = err == nil
	run.RecordsParsed = sql.NullInt64{Int64: int64(parsed), Valid: true}
	run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	if cerr := s.store.CompleteIngestRun(ctx, run); cerr != nil {
		s.log.Warn("complete ingest run", zap.Error(cerr))
	}
}
