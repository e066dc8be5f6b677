// Package status serves read-only run status over HTTP while a batch runs.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"papergraph/backend/internal/batch"
	"papergraph/backend/pkg/logger"
)

// Source reports the current batch counts.
type Source interface {
	Snapshot() batch.Summary
}

// Server is the status HTTP server
type Server struct {
	srv     *http.Server
	started time.Time
	logger  *zap.Logger
}

// NewRouter builds the gin router with /health and /progress.
func NewRouter(src Source, started time.Time, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/progress", func(c *gin.Context) {
		s := src.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"run_id":                  s.RunID,
			"total":                   s.Total,
			"pending":                 s.Pending,
			"in_progress":             s.InProgress,
			"succeeded":               s.Succeeded,
			"succeeded_with_fallback": s.SucceededWithFallback,
			"failed":                  s.Failed,
			"skipped":                 s.Skipped,
			"top_failures":            s.TopFailures,
			"uptime_seconds":          int(time.Since(started).Seconds()),
		})
	})

	return router
}

// New creates a status server listening on addr
func New(addr string, src Source, production bool) *Server {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	log := logger.Get()
	started := time.Now()
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(src, started, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
		started: started,
		logger:  log,
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server, waiting up to five seconds for requests.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("status server forced to shutdown", zap.Error(err))
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
