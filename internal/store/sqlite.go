package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/medcast/internal/logging"
	"github.com/lox/medcast/internal/models"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, log: logging.OrNop(logger).Named("store")}
}

// Open opens a SQLite database with WAL journaling and a busy timeout.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *Store) UpsertMedication(ctx context.Context, m models.Medication) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medications (id, name, description, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category
	`, m.ID, m.Name, m.Description, m.Category)
	return err
}

func (s *Store) ListMedications(ctx context.Context) ([]models.Medication, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, COALESCE(description, ''), COALESCE(category, '') FROM medications ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []models.Medication
	for rows.Next() {
		var m models.Medication
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Category); err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// GetMedication returns nil when the id is unknown.
func (s *Store) GetMedication(ctx context.Context, id string) (*models.Medication, error) {
	var m models.Medication
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(category, '')
		FROM medications WHERE id = ?
	`, id).Scan(&m.ID, &m.Name, &m.Description, &m.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpsertMunicipality(ctx context.Context, m models.Municipality) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO municipalities (id, name, region)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			region = excluded.region
	`, m.ID, m.Name, m.Region)
	return err
}

func (s *Store) ListMunicipalities(ctx context.Context) ([]models.Municipality, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, COALESCE(region, '') FROM municipalities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var munis []models.Municipality
	for rows.Next() {
		var m models.Municipality
		if err := rows.Scan(&m.ID, &m.Name, &m.Region); err != nil {
			return nil, err
		}
		munis = append(munis, m)
	}
	return munis, rows.Err()
}

// UpsertPrediction stores p unless a newer prediction already holds its
// (medication, municipality, period type, period index) slot. A document
// whose id is stored under a different slot is moved when p is at least as
// new. It reports whether a row was written.
func (s *Store) UpsertPrediction(ctx context.Context, p models.Prediction) (bool, error) {
	createdAt := formatTime(p.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert %s: %w", p.Key(), err)
	}
	defer tx.Rollback()

	var heldAt string
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM predictions
		WHERE id = ? AND NOT (medication_id = ? AND municipality_id = ? AND period_type = ? AND period_index = ?)
	`, p.ID, p.MedicationID, p.MunicipalityID, string(p.PeriodType), p.PeriodIndex).Scan(&heldAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("lookup prediction %s: %w", p.ID, err)
	case heldAt > createdAt:
		return false, nil
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM predictions WHERE id = ?`, p.ID); err != nil {
			return false, fmt.Errorf("move prediction %s: %w", p.ID, err)
		}
		s.log.Debug("prediction moved to a new slot", zap.String("id", p.ID), zap.Stringer("key", p.Key()))
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO predictions (id, medication_id, municipality_id, period_type, period_index, value, date, confidence, label, temperature, humidity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(medication_id, municipality_id, period_type, period_index) DO UPDATE SET
			id = excluded.id,
			value = excluded.value,
			date = excluded.date,
			confidence = excluded.confidence,
			label = excluded.label,
			temperature = excluded.temperature,
			humidity = excluded.humidity,
			created_at = excluded.created_at
		WHERE excluded.created_at >= predictions.created_at
	`, p.ID, p.MedicationID, p.MunicipalityID, string(p.PeriodType), p.PeriodIndex, p.Value,
		p.Date, nullFloat(p.Confidence), p.Label, nullFloat(p.Temperature), nullFloat(p.Humidity),
		createdAt)
	if err != nil {
		return false, fmt.Errorf("upsert prediction %s: %w", p.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert %s: %w", p.Key(), err)
	}
	return n > 0, nil
}

// PredictionFilter narrows ListPredictions. Empty fields match everything.
type PredictionFilter struct {
	MedicationID   string
	MunicipalityID string
	PeriodType     models.PeriodType
}

// ListPredictions returns matching predictions ordered by municipality and period index.
func (s *Store) ListPredictions(ctx context.Context, f PredictionFilter) ([]models.Prediction, error) {
	var where []string
	var args []any
	if f.MedicationID != "" {
		where = append(where, "medication_id = ?")
		args = append(args, f.MedicationID)
	}
	if f.MunicipalityID != "" {
		where = append(where, "municipality_id = ?")
		args = append(args, f.MunicipalityID)
	}
	if f.PeriodType != "" {
		where = append(where, "period_type = ?")
		args = append(args, string(f.PeriodType))
	}

	query := `
		SELECT id, medication_id, municipality_id, period_type, period_index, value,
		       COALESCE(date, ''), confidence, COALESCE(label, ''), temperature, humidity, created_at
		FROM predictions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY municipality_id, period_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []models.Prediction
	for rows.Next() {
		var p models.Prediction
		var period, createdAt string
		var confidence, temperature, humidity sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.MedicationID, &p.MunicipalityID, &period, &p.PeriodIndex, &p.Value,
			&p.Date, &confidence, &p.Label, &temperature, &humidity, &createdAt); err != nil {
			return nil, err
		}
		p.PeriodType = models.PeriodType(period)
		p.Confidence = floatPtr(confidence)
		p.Temperature = floatPtr(temperature)
		p.Humidity = floatPtr(humidity)
		p.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", p.ID, err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

func (s *Store) CountPredictions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
