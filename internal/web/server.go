package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/go-moodtunes/internal/metrics"
	"github.com/justestif/go-moodtunes/internal/mood"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr        string
	TemplatesFS fs.FS
	StaticFS    fs.FS

	Auth     Authenticator
	Sessions *SessionManager
	Profiles mood.Profiles
	// Backend is optional.
	Backend Account
	// Metrics is optional; when set, /metrics serves its registry.
	Metrics *metrics.Metrics

	RateLimitRPS   float64
	RateLimitBurst int

	Logger *slog.Logger
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	sessions *SessionManager
	handlers *Handlers
	metrics  *metrics.Metrics
	limiter  *rateLimiter
	logger   *slog.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		sessions: cfg.Sessions,
		handlers: NewHandlers(cfg.Auth, cfg.Sessions, templates, cfg.Profiles, cfg.Backend, logger),
		metrics:  cfg.Metrics,
		logger:   logger,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(accessLog(s.logger))
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(staticFS fs.FS) {
	h := s.handlers

	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	s.router.Get("/healthz", h.Healthz)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// Pages
	s.router.Get("/", h.Home)
	s.router.Get("/callback", h.Callback)
	s.router.Get("/partials/suggestions", h.SuggestionsPartial)

	// Auth routes
	s.router.Get("/auth/login", h.Login)
	s.router.Post("/auth/token", h.Token)
	s.router.Post("/auth/logout", h.Logout)

	s.router.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Post("/login", h.BackendLogin)
		r.Get("/moods", h.Moods)
		r.Get("/status", h.Status)
		r.Delete("/status/error", h.DismissError)

		r.Post("/frames", h.Frame)
		r.Post("/camera/error", h.CameraError)
		r.Post("/scan", h.StartScan)
		r.Delete("/scan", h.StopScan)
		r.Post("/snapshot", h.Snapshot)
		r.Post("/mood", h.ManualMood)

		r.Get("/suggestions", h.Suggestions)
		r.Post("/suggestions/refresh", h.RefreshSuggestions)
		r.Post("/playback/{trackID}", h.TogglePlayback)

		r.Get("/playlists", h.Playlists)
		r.Post("/playlists", h.SavePlaylist)
		r.Get("/playlists/{id}/tracks", h.PlaylistTracks)

		r.Get("/stats/top-moods", h.TopMoods)
	})
}

// Run serves until ctx is done, then shuts down gracefully and closes every
// session.
func (s *Server) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sessions.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_started", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		s.logger.Info("server_stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server_stopped")
	return nil
}
