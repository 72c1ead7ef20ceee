package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	handlers "github.com/de-tools/dino/pkg/handlers/setup"
	dinomiddleware "github.com/de-tools/dino/pkg/server/middleware"
)

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Checkpoints handlers.CheckpointReader
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

// NewRouter mounts the read-only setup status routes.
func NewRouter(logger zerolog.Logger, deps Dependencies) *chi.Mux {
	setupHandler := handlers.NewHandler(deps.Checkpoints)

	router := chi.NewRouter()

	router.Use(dinomiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/environments", setupHandler.ListEnvironments)
		r.Get("/environments/{project}/{environment}", setupHandler.GetEnvironment)
	})

	return router
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	router := NewRouter(logger, config.Dependencies)

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Start serves until ctx is done, then drains in-flight requests for at most
// the shutdown timeout.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	w.logger.Info().Msg("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.logger.Error().Err(err).Msg("graceful shutdown failed")
		return w.server.Close()
	}
	return nil
}
