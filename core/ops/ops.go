// Package ops serves the operational HTTP endpoints of a bot process.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Gabrielbm2/chatbot-telegram/core/buildinfo"
	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// Options configures the server.
type Options struct {
	Listen  string
	Started time.Time
	Checks  map[string]Check
	// CheckTimeout bounds a single /healthz check; 0 -> 2s.
	CheckTimeout time.Duration
	// Counters, when set, adds process counters to /uptime.
	Counters func() map[string]uint64

	now func() time.Time
}

// Server exposes GET /healthz and GET /uptime.
type Server struct {
	opts Options
	mux  chi.Router
}

// New builds the router. Nothing listens until Run.
func New(opts Options) *Server {
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Second
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLog)
	r.Get("/healthz", s.healthz)
	r.Get("/uptime", s.uptime)
	s.mux = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Uptime returns the time since the process started.
func (s *Server) Uptime() time.Duration {
	return s.opts.now().Sub(s.opts.Started)
}

// Run listens on Options.Listen until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "ops", "listen", slog.String("listen", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	report := healthReport{Status: "ok", Checks: map[string]string{}}
	names := make([]string, 0, len(s.opts.Checks))
	for name := range s.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.CheckTimeout)
		err := s.opts.Checks[name](ctx)
		cancel()
		if err != nil {
			report.Status = "fail"
			report.Checks[name] = err.Error()
			logger.Warn(r.Context(), "ops", "healthz.fail",
				slog.String("cause", name),
				slog.String("err", err.Error()),
			)
			continue
		}
		report.Checks[name] = "ok"
	}

	code := http.StatusOK
	if report.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

type uptimeReport struct {
	UptimeSeconds int64             `json:"uptime_seconds"`
	Uptime        string            `json:"uptime"`
	Version       string            `json:"version"`
	Commit        string            `json:"commit"`
	BuildTime     string            `json:"build_time,omitempty"`
	Counters      map[string]uint64 `json:"counters,omitempty"`
}

func (s *Server) uptime(w http.ResponseWriter, _ *http.Request) {
	up := s.Uptime().Truncate(time.Second)
	report := uptimeReport{
		UptimeSeconds: int64(up / time.Second),
		Uptime:        up.String(),
		Version:       buildinfo.Version,
		Commit:        buildinfo.Commit,
		BuildTime:     buildinfo.Date,
	}
	if s.opts.Counters != nil {
		report.Counters = s.opts.Counters()
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug(r.Context(), "ops", "http.request",
			slog.String("op", r.Method+" "+r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
