package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lox/medcast/internal/api"
	"github.com/lox/medcast/internal/auth"
	"github.com/lox/medcast/internal/demand"
	"github.com/lox/medcast/internal/export"
	"github.com/lox/medcast/internal/ingest"
	"github.com/lox/medcast/internal/models"
	"github.com/lox/medcast/internal/narrative"
	"github.com/lox/medcast/internal/store"
)

type SinkFlags struct {
	Dir         string `name:"export-dir" env:"MEDCAST_EXPORT_DIR" default:"data/exports" help:"Directory for published exports."`
	FTPAddr     string `name:"ftp-addr" env:"MEDCAST_FTP_ADDR" help:"Publish exports to this FTP server (host:port) instead of a directory."`
	FTPUser     string `name:"ftp-user" env:"MEDCAST_FTP_USER"`
	FTPPassword string `name:"ftp-password" env:"MEDCAST_FTP_PASSWORD"`
	FTPDir      string `name:"ftp-dir" env:"MEDCAST_FTP_DIR"`
}

func (f SinkFlags) sink() export.Sink {
	if f.FTPAddr != "" {
		return export.FTPSink{Addr: f.FTPAddr, User: f.FTPUser, Password: f.FTPPassword, Dir: f.FTPDir}
	}
	return export.FileSink{Dir: f.Dir}
}

type ServeCmd struct {
	Addr       string        `default:":8080" env:"MEDCAST_ADDR" help:"HTTP listen address."`
	NoPoll     bool          `help:"Disable backend polling."`
	Interval   time.Duration `default:"30m" env:"MEDCAST_SYNC_INTERVAL" help:"Backend sync interval."`
	Retention  time.Duration `default:"720h" env:"MEDCAST_RAW_RETENTION" help:"How long raw backend payloads are kept."`
	AuthSecret string        `env:"MEDCAST_AUTH_SECRET" help:"HS256 secret for export tokens. Exports are open when empty."`
	OpenAIKey  string        `name:"openai-key" env:"OPENAI_API_KEY" help:"Enables model-written insights."`
	Sink       SinkFlags     `embed:""`
}

func (c *ServeCmd) Run(app *App) error {
	st, db, err := app.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	client, closeClient, err := app.backendClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	switch {
	case client == nil:
		app.log.Info("no backend configured, serving stored data only")
	case c.NoPoll:
		app.log.Info("polling disabled (--no-poll)")
	default:
		sched := ingest.NewScheduler(st, client,
			ingest.WithInterval(c.Interval),
			ingest.WithRetention(c.Retention),
			ingest.WithSchedulerLogger(app.log))
		go sched.Run(ctx)
	}

	server := api.NewServer(st, c.Addr, app.log,
		api.WithAuth(auth.New(c.AuthSecret, nil)),
		api.WithNarrative(narrative.New(c.OpenAIKey, app.log)),
		api.WithSink(c.Sink.sink()),
	)
	return server.Run(ctx)
}

type SyncCmd struct{}

func (c *SyncCmd) Run(app *App) error {
	st, db, err := app.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	client, closeClient, err := app.backendClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()
	if client == nil {
		return errors.New("--backend-url is required")
	}

	stats, err := ingest.NewScheduler(st, client, ingest.WithSchedulerLogger(app.log)).SyncOnce(ctx)
	if err != nil {
		return err
	}
	app.log.Info("sync complete",
		zap.Int("medications", stats.Medications),
		zap.Int("municipalities", stats.Municipalities),
		zap.Int("fetched", stats.Fetched),
		zap.Int("stored", stats.Stored),
		zap.Int("rejected", stats.Rejected),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failures", stats.Failures))
	return nil
}

type SeedCmd struct {
	Seed uint64 `default:"1" help:"PRNG seed; equal seeds give equal data."`
}

func (c *SeedCmd) Run(app *App) error {
	st, db, err := app.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := ingest.Seed(ctx, st, c.Seed, time.Now())
	if err != nil {
		return err
	}
	app.log.Info("seeded demo data",
		zap.Int("medications", stats.Medications),
		zap.Int("municipalities", stats.Municipalities),
		zap.Int("predictions", stats.Predictions))
	return nil
}

type DedupeCmd struct {
	Medication string `required:"" help:"Medication id."`
	Period     string `default:"weekly" enum:"weekly,monthly" help:"Period type."`
}

func (c *DedupeCmd) Run(app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, closeClient, err := app.backendClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()
	if client == nil {
		return errors.New("--backend-url is required")
	}

	batch, err := client.Predictions(ctx, ingest.PredictionQuery{MedicationID: c.Medication, PeriodType: models.PeriodType(c.Period)})
	if err != nil {
		return err
	}
	kept, groups := ingest.Reconcile(batch.Predictions)

	enc := json.NewEncoder(os.Stdout)
	for _, g := range groups {
		if err := enc.Encode(g); err != nil {
			return err
		}
	}
	app.log.Info("dedupe report",
		zap.Int("fetched", batch.RecordCount),
		zap.Int("rejected", len(batch.Rejected)),
		zap.Int("kept", len(kept)),
		zap.Int("groups", len(groups)))
	return nil
}

type ExportCmd struct {
	Medication string    `required:"" help:"Medication id."`
	Period     string    `default:"weekly" enum:"weekly,monthly" help:"Period type."`
	Format     string    `default:"csv" enum:"csv,xlsx" help:"File format."`
	Mode       string    `default:"region" enum:"region,record" help:"One row per region or per record."`
	Regions    []string  `help:"Municipality ids to include, in order. Defaults to all."`
	Confidence bool      `help:"Include the confidence column."`
	Outliers   bool      `help:"Include the outlier status column."`
	Sink       SinkFlags `embed:""`
}

func (c *ExportCmd) Run(app *App) error {
	st, db, err := app.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	period := models.PeriodType(c.Period)
	med, err := st.GetMedication(ctx, c.Medication)
	if err != nil {
		return err
	}
	if med == nil {
		return fmt.Errorf("unknown medication %q", c.Medication)
	}
	munis, err := st.ListMunicipalities(ctx)
	if err != nil {
		return err
	}
	records, err := st.ListPredictions(ctx, store.PredictionFilter{MedicationID: med.ID, PeriodType: period})
	if err != nil {
		return err
	}

	f, err := export.Build(export.Query{
		Medication: *med,
		Period:     period,
		Format:     export.Format(c.Format),
		Mode:       export.Mode(c.Mode),
		Regions:    c.Regions,
		Options:    demand.ExportOptions{IncludeConfidence: c.Confidence, IncludeOutlierFlag: c.Outliers},
	}, munis, records, time.Now())
	if err != nil {
		return err
	}
	location, err := c.Sink.sink().Put(ctx, f.Name, f.Data)
	if err != nil {
		return err
	}
	app.log.Info("wrote export", zap.String("location", location), zap.Int("rows", f.Rows))
	return nil
}

type TokenCmd struct {
	Secret  string        `required:"" env:"MEDCAST_AUTH_SECRET" help:"HS256 signing secret."`
	Subject string        `required:"" help:"Token subject, e.g. an email address."`
	TTL     time.Duration `default:"24h" help:"Token lifetime."`
}

func (c *TokenCmd) Run(app *App) error {
	token, err := auth.New(c.Secret, nil).Mint(c.Subject, c.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
