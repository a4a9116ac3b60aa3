// Package server implements the multi-tenant web front end.
//
// Every route sits behind the trusted-launch authorization gate; job
// submission and tracking are scoped to the authenticated session.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siftworks/siftx/internal/config"
	"github.com/siftworks/siftx/pkg/jobtracker"
	"github.com/siftworks/siftx/pkg/launch"
	"github.com/siftworks/siftx/pkg/sifter"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the web front end.
type Server struct {
	cfg        config.ServerConfig
	logger     *zap.Logger
	verifier   *launch.Verifier
	registry   *sifter.Registry
	tracker    *jobtracker.Tracker
	sessions   *SessionStore
	staffRoles []string
	templates  *template.Template

	rateCfg    config.RateConfig
	limiterMu  sync.Mutex
	limiters   map[string]*rate.Limiter
	httpServer *http.Server
}

// New wires the server from its collaborators.
func New(cfg *config.Config, registry *sifter.Registry, tracker *jobtracker.Tracker, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		cfg:        cfg.Server,
		logger:     logger,
		verifier:   launch.NewVerifier(cfg.LaunchConsumers(), logger),
		registry:   registry,
		tracker:    tracker,
		sessions:   NewSessionStore(cfg.SessionSecret),
		staffRoles: cfg.EffectiveStaffRoles(),
		templates:  templates,
		rateCfg:    cfg.Rate,
		limiters:   make(map[string]*rate.Limiter),
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.requestLogger)

	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(s.launchGate)
		r.Get("/", s.handleIndex)
		r.Post("/", s.handleIndex)
		r.Route("/api/"+APIVersion, func(api chi.Router) {
			api.Post("/run", s.handleRun)
			api.Put("/update_task_status", s.handleTaskStatus)
			api.Delete("/clear_complete_tasks", s.handleClearTasks)
		})
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web service listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// requestLogger logs one line per request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())))
	})
}

// allowSubmission enforces the per-tenant submission rate limit. Zero
// configured rate disables limiting.
func (s *Server) allowSubmission(consumerKey string) bool {
	if s.rateCfg.PerSecond <= 0 {
		return true
	}
	s.limiterMu.Lock()
	limiter, ok := s.limiters[consumerKey]
	if !ok {
		burst := s.rateCfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.rateCfg.PerSecond), burst)
		s.limiters[consumerKey] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Allow()
}
