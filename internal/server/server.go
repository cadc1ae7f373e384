// Пакет server — HTTP-сервер epflws с graceful shutdown.
// Чтение открыто; изменяющие маршруты требуют JWT с ролью editor,
// если аутентификация включена (WS_JWT_JWKS_URL задан).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/epfl-sti/epflws/internal/api/handlers"
	"github.com/epfl-sti/epflws/internal/api/middleware"
	"github.com/epfl-sti/epflws/internal/config"
	"github.com/epfl-sti/epflws/internal/domain/rbac"
)

// Handlers — обработчики, из которых собирается маршрутизатор.
type Handlers struct {
	Health  *handlers.HealthHandler
	Labs    *handlers.LabHandler
	Persons *handlers.PersonHandler
	Memento *handlers.MementoHandler
}

// Server — HTTP-сервер epflws.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// jwtAuth может быть nil — изменяющие маршруты открыты.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /labs/sync обходит все лаборатории
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор chi.
func NewRouter(logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Get("/memento", h.Memento.Render)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/labs", h.Labs.List)
		r.Get("/labs/{id}", h.Labs.Get)
		r.Get("/labs/{id}/manager", h.Labs.Manager)
		r.Get("/labs/by-unique-id/{uniqueID}", h.Labs.GetByUniqueID)
		r.Get("/labs/by-abbrev/{abbrev}", h.Labs.GetByAbbrev)
		r.Get("/auto-fields/{postType}", h.Labs.AutoFields)
		r.Get("/persons/{sciper}", h.Persons.Get)

		r.Group(func(r chi.Router) {
			if jwtAuth != nil {
				r.Use(jwtAuth.Middleware())
				r.Use(middleware.RequireRole(rbac.RoleEditor))
			}

			r.Post("/labs/sync", h.Labs.SyncAll)
			r.Post("/labs/by-abbrev/{abbrev}", h.Labs.CreateByAbbrev)
			r.Post("/labs/{id}/sync", h.Labs.Sync)
			r.Put("/labs/{id}/not-a-lab", h.Labs.SetNotALab)
			r.Post("/persons/{sciper}/sync", h.Persons.Sync)
		})
	})

	return router
}

// Run запускает сервер и ожидает SIGINT/SIGTERM или отмены ctx,
// после чего выполняет graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
