package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/digster/internal/jobs"
	"github.com/justestif/digster/internal/logger"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr      string
	OAuth     OAuth
	Sessions  SessionManager
	Users     UserStore
	Discovery Discovery
	Queue     jobs.Queue
	Log       *logger.Logger

	// SpotifyAPIURL overrides the Web API root used for the login profile lookup.
	SpotifyAPIURL string
}

// Server is the HTTP server for the API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	log      *logger.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.OAuth == nil || cfg.Sessions == nil || cfg.Users == nil || cfg.Discovery == nil || cfg.Queue == nil {
		return nil, errors.New("web: incomplete server config")
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}

	log := cfg.Log.With("component", "web")
	s := &Server{
		router: chi.NewRouter(),
		handlers: &Handlers{
			auth:       cfg.OAuth,
			sessions:   cfg.Sessions,
			users:      cfg.Users,
			discovery:  cfg.Discovery,
			queue:      cfg.Queue,
			log:        log,
			spotifyAPI: cfg.SpotifyAPIURL,
		},
		log: log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth routes
	s.router.Get("/auth/login", h.Login)
	s.router.Get("/callback", h.Callback)
	s.router.Post("/auth/logout", h.Logout)

	// Public profiles and discovery
	s.router.Get("/users/{userID}/followers", h.Followers)
	s.router.Get("/users/{userID}/following", h.Following)
	s.router.Get("/users/{userID}/albums", h.UserAlbums)
	s.router.Get("/albums/random", h.RandomAlbum)

	s.router.Group(func(r chi.Router) {
		r.Use(h.requireSession)

		r.Get("/me", h.Me)
		r.Put("/me/fetching", h.SetFetching)
		r.Put("/me/description", h.SetDescription)
		r.Post("/sync", h.Sync)
		r.Post("/follows/{userID}", h.ToggleFollow)
		r.Get("/feed", h.Feed)
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
