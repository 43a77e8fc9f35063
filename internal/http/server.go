package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"db_changelog_migrator/internal/auth"
	"db_changelog_migrator/internal/migrate"
	"db_changelog_migrator/internal/script"
)

// Engine is the read-only slice of the migration engine the API exposes.
type Engine interface {
	Status(ctx context.Context) ([]migrate.Change, error)
	Pending(ctx context.Context) ([]script.Script, error)
	Ping(ctx context.Context) error
}

type Server struct {
	addr   string
	logger requestLogger
	engine Engine
	// authn is nil when the API is served without authentication.
	authn auth.Authenticator
}

type requestLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

func New(addr string, logger requestLogger, engine Engine, authn auth.Authenticator) *Server {
	return &Server{addr: addr, logger: logger, engine: engine, authn: authn}
}

func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(RequestLogger(s.logger))

	changes := &ChangesHandler{engine: s.engine, logger: s.logger}

	r.Route("/api/v1", func(api chi.Router) {
		api.Method(http.MethodGet, "/health", HealthHandler{Engine: s.engine})

		api.Group(func(protected chi.Router) {
			if s.authn != nil {
				protected.Use(NewAuthMiddleware(s.authn, s.logger).RequireAuth)
			}
			protected.Get("/changes", changes.List)
			protected.Get("/changes/pending", changes.Pending)
		})
	})

	return r
}
