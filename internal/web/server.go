package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/database"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/kozaktomas/frame-redactor/internal/web/handlers"
	"github.com/kozaktomas/frame-redactor/internal/web/middleware"
	"go.uber.org/zap"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	engine     *effect.Engine
	thresholds *idmgmt.ThresholdManager
	store      database.ThresholdStore
	jobManager *handlers.JobManager
	logger     *zap.Logger
}

// NewServer creates a new web server. store may be nil to keep threshold
// settings in memory only.
func NewServer(cfg *config.Config, engine *effect.Engine, tm *idmgmt.ThresholdManager, store database.ThresholdStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	s := &Server{
		config:     cfg,
		router:     r,
		engine:     engine,
		thresholds: tm,
		store:      store,
		jobManager: handlers.NewJobManager(),
		logger:     logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and large frames
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown cancels running batch jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	for _, job := range s.jobManager.ListJobs() {
		if job.GetStatus() == handlers.JobStatusRunning || job.GetStatus() == handlers.JobStatusPending {
			job.Cancel()
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
