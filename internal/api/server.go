package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/medcast/internal/auth"
	"github.com/lox/medcast/internal/chart"
	"github.com/lox/medcast/internal/export"
	"github.com/lox/medcast/internal/httputil"
	"github.com/lox/medcast/internal/logging"
	"github.com/lox/medcast/internal/narrative"
	"github.com/lox/medcast/internal/store"
)

type Server struct {
	store     *store.Store
	addr      string
	log       *zap.Logger
	clock     clockwork.Clock
	auth      *auth.Authenticator
	narrative *narrative.Writer
	charts    *chart.Cache
	sink      export.Sink
}

type Option func(*Server)

// WithAuth guards export endpoints with bearer tokens.
func WithAuth(a *auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

func WithNarrative(w *narrative.Writer) Option {
	return func(s *Server) { s.narrative = w }
}

// WithSink enables POST /api/export/publish.
func WithSink(sink export.Sink) Option {
	return func(s *Server) { s.sink = sink }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

func NewServer(st *store.Store, addr string, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		store: st,
		addr:  addr,
		log:   logging.OrNop(logger).Named("api"),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.narrative == nil {
		s.narrative = narrative.New("", s.log)
	}
	if s.auth == nil {
		s.auth = auth.New("", s.clock)
	}
	if !s.auth.Enabled() {
		s.log.Warn("no auth secret configured, export endpoints are open")
	}
	s.charts = chart.NewCache(5*time.Minute, s.clock)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /health", http.HandlerFunc(s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())

	s.route(mux, "GET /api/medications", http.HandlerFunc(s.handleMedications))
	s.route(mux, "GET /api/municipalities", http.HandlerFunc(s.handleMunicipalities))
	s.route(mux, "GET /api/predictions", http.HandlerFunc(s.handlePredictions))
	s.route(mux, "GET /api/series", http.HandlerFunc(s.handleSeries))
	s.route(mux, "GET /api/heatmap", http.HandlerFunc(s.handleHeatmap))
	s.route(mux, "GET /api/top-increases", http.HandlerFunc(s.handleTopIncreases))
	s.route(mux, "GET /api/insight", http.HandlerFunc(s.handleInsight))
	s.route(mux, "GET /api/chart.png", http.HandlerFunc(s.handleChart))
	s.route(mux, "GET /api/export", s.auth.Middleware(http.HandlerFunc(s.handleExport)))
	s.route(mux, "POST /api/export/publish", s.auth.Middleware(http.HandlerFunc(s.handlePublish)))
	return requestID(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK

	count, err := s.store.CountPredictions(r.Context())
	if err != nil {
		status["status"] = "degraded"
		status["error"] = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		status["predictions"] = count
	}
	if run, err := s.store.LastSuccessfulRun(r.Context()); err == nil && run != nil {
		status["lastSync"] = run.StartedAt
	}
	s.writeJSON(w, code, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := httputil.WriteJSON(w, status, v); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}
