// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-slowlog/internal/config"
	"github.com/miradorstack/mirador-slowlog/internal/services"
)

// Server wraps the HTTP listener serving the analysis API.
type Server struct {
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds the router and binds it to the configured address.
func NewServer(logger *slog.Logger, cfg config.ServerConfig, analysis config.AnalysisConfig, service *services.AnalysisService) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := newHandlers(logger, analysis, service)

	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/ingest", h.ingest)
		v1.GET("/patterns", h.patterns)
		v1.GET("/suggestions", h.suggestions)
		v1.GET("/executions", h.executions)
		v1.GET("/authentications", h.authentications)
		v1.GET("/connections", h.connections)
	}

	return &Server{
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("address", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
