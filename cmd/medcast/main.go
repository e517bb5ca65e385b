package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/medcast/internal/cache"
	"github.com/lox/medcast/internal/ingest"
	"github.com/lox/medcast/internal/logging"
	"github.com/lox/medcast/internal/store"
)

type CLI struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	DB        string `default:"data/medcast.db" env:"MEDCAST_DB" help:"Path to SQLite database."`
	LogLevel  string `default:"info" env:"LOG_LEVEL" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string `default:"json" env:"LOG_FORMAT" enum:"json,console" help:"Log format."`

	Backend BackendFlags `embed:"" prefix:"backend-"`

	Serve  ServeCmd  `cmd:"" help:"Run the HTTP API and the sync scheduler."`
	Sync   SyncCmd   `cmd:"" help:"Sync predictions from the backend once and exit."`
	Seed   SeedCmd   `cmd:"" help:"Load deterministic demo data."`
	Dedupe DedupeCmd `cmd:"" help:"Report duplicate predictions in a backend batch."`
	Export ExportCmd `cmd:"" help:"Write a demand export file."`
	Token  TokenCmd  `cmd:"" help:"Mint a bearer token for the export endpoints."`
}

type BackendFlags struct {
	URL      string `name:"url" env:"MEDCAST_BACKEND_URL" help:"Prediction backend base URL."`
	Token    string `name:"token" env:"MEDCAST_BACKEND_TOKEN" help:"Prediction backend bearer token."`
	RedisURL string `name:"redis-url" env:"MEDCAST_REDIS_URL" help:"Cache reference data in Redis instead of memory."`
}

// App carries what every command needs.
type App struct {
	cli *CLI
	log *zap.Logger
}

func (a *App) openStore() (*store.Store, *sql.DB, error) {
	db, err := store.Open(a.cli.DB)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db, a.log)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, db, nil
}

// backendClient returns nil when no backend URL is configured.
func (a *App) backendClient(ctx context.Context) (*ingest.Client, func(), error) {
	b := a.cli.Backend
	if b.URL == "" {
		return nil, func() {}, nil
	}

	opts := []ingest.Option{ingest.WithLogger(a.log)}
	cleanup := func() {}
	if b.RedisURL != "" {
		rc, err := cache.DialRedis(ctx, b.RedisURL, "medcast:")
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, ingest.WithCache(rc))
		cleanup = func() { rc.Close() }
	} else {
		opts = append(opts, ingest.WithCache(cache.NewMemory(64, nil)))
	}
	return ingest.NewClient(b.URL, b.Token, opts...), cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("medcast"),
		kong.Description("Medication demand forecasts by municipality."),
		kong.UsageOnError(),
	)

	logger, err := logging.New(cli.LogLevel, cli.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	err = kctx.Run(&App{cli: &cli, log: logger})
	if err != nil {
		logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		os.Exit(1)
	}
}
