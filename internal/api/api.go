// Package api provides the admin HTTP server for HandCoach.
//
// It exposes health and session statistics, the audit records kept by the
// store, the media directory (so Twilio can fetch clips by URL) and the Twilio
// inbound webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/HandCoach/internal/flow"
	"github.com/BTreeMap/HandCoach/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server configuration constants
const (
	// DefaultAddr is the listen address when none is configured
	DefaultAddr = ":8080"
	// DefaultRequestTimeout bounds each request handled by the router
	DefaultRequestTimeout = 30 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// SessionInspector reports live sessions.
type SessionInspector interface {
	Stats() flow.SessionStats
	Snapshot() []models.Session
}

// AuditReader lists audit records.
type AuditReader interface {
	GetQuizResults(userID string, limit int) ([]models.QuizResult, error)
	GetCoachingRecords(userID string, limit int) ([]models.CoachingRecord, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string       // listen address
	JWTSecret     string       // enables bearer auth on admin routes when set
	MediaDir      string       // served under /media/ when set
	TwilioWebhook http.Handler // mounted at POST /webhooks/twilio when set
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithJWTSecret protects admin routes with HS256 bearer tokens.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// WithMediaDir serves dir under /media/.
func WithMediaDir(dir string) Option {
	return func(o *Opts) { o.MediaDir = dir }
}

// WithTwilioWebhook mounts the Twilio inbound handler.
func WithTwilioWebhook(h http.Handler) Option {
	return func(o *Opts) { o.TwilioWebhook = h }
}

// Server is the admin HTTP server.
type Server struct {
	cfg      Opts
	sessions SessionInspector
	audit    AuditReader
	started  time.Time
	router   chi.Router
}

// NewServer builds the router. sessions and audit may be nil; their routes
// then report 503.
func NewServer(sessions SessionInspector, audit AuditReader, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{cfg: cfg, sessions: sessions, audit: audit, started: time.Now()}
	s.router = s.routes()
	slog.Debug("API server configured", "addr", cfg.Addr, "jwt", cfg.JWTSecret != "", "media", cfg.MediaDir != "", "twilio_webhook", cfg.TwilioWebhook != nil)
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(DefaultRequestTimeout))

	r.Get("/healthz", s.healthHandler)

	if s.cfg.MediaDir != "" {
		fs := http.StripPrefix("/media/", http.FileServer(http.Dir(s.cfg.MediaDir)))
		r.Get("/media/*", fs.ServeHTTP)
	}
	if s.cfg.TwilioWebhook != nil {
		r.Post("/webhooks/twilio", s.cfg.TwilioWebhook.ServeHTTP)
	}

	r.Group(func(pr chi.Router) {
		if s.cfg.JWTSecret != "" {
			pr.Use(JWTMiddleware(NewAuthService(s.cfg.JWTSecret)))
		}
		pr.Get("/sessions", s.sessionsHandler)
		pr.Get("/sessions/stats", s.sessionStatsHandler)
		pr.Get("/results", s.resultsHandler)
		pr.Get("/coaching", s.coachingHandler)
	})
	return r
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	return nil
}

// requestLogger logs each request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			slog.Debug("API request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}
