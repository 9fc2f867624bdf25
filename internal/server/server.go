// Package server provides the HTTP server for the room lifecycle API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/devrev/tempvoice/internal/config"
	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/handler"
	"github.com/devrev/tempvoice/internal/health"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthChecker
	metrics      *metrics.Metrics
	errorHandler *apperrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server with its routes installed.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	healthCheck *health.HealthChecker,
	m *metrics.Metrics,
	errorHandler *apperrors.Handler,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	s := &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		metrics:      m,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.errorHandler, s.logger),
		middleware.RequestID,
		middleware.MemberID,
		middleware.Logging(s.logger),
	}
	if s.metrics != nil {
		middlewareChain = append(middlewareChain, s.metrics.Middleware)
	}

	if s.cfg.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(s.cfg.RateLimiter, s.errorHandler, s.logger)
		middlewareChain = append(middlewareChain, limiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health/live", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Event ingestion
	v1.HandleFunc("/events/occupancy", s.handlers.OccupancyEvent).Methods(http.MethodPost)

	// Tenant scoped
	v1.HandleFunc("/tenants/{tenant_id}/rooms", s.handlers.CreateRoom).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{tenant_id}/rooms", s.handlers.ListRooms).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant_id}/config", s.handlers.GetTenantConfig).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant_id}/config", s.handlers.UpdateTenantConfig).Methods(http.MethodPut)

	// Owner controls
	v1.HandleFunc("/rooms/{room_id}", s.handlers.GetRoom).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{room_id}", s.handlers.CloseRoom).Methods(http.MethodDelete)
	v1.HandleFunc("/rooms/{room_id}/lock", s.handlers.LockRoom).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{room_id}/unlock", s.handlers.UnlockRoom).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{room_id}/transfer", s.handlers.TransferRoom).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{room_id}/kick", s.handlers.KickMember).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{room_id}/limit", s.handlers.SetUserLimit).Methods(http.MethodPut)
	v1.HandleFunc("/rooms/{room_id}/name", s.handlers.RenameRoom).Methods(http.MethodPut)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(middleware.HeaderRequestID)
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apperrors.ResponseCodeInvalidRequest, "endpoint not found", requestID)
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(middleware.HeaderRequestID)
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apperrors.ResponseCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
