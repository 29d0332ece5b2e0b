// Package api serves the read-only status endpoints of a relay process.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	router  *gin.Engine
	http    *http.Server
	stats   outboxdb.OutboxMaintenanceDB
	ownerID string
	logger  *zap.Logger
}

func NewServer(addr string, stats outboxdb.OutboxMaintenanceDB, ownerID string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:  gin.New(),
		stats:   stats,
		ownerID: ownerID,
		logger:  logger.Named("api"),
	}
	s.router.Use(gin.Recovery(), s.accessLog())
	RegisterRoutes(s.router, s)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func RegisterRoutes(r *gin.Engine, s *Server) {
	r.GET("/healthz", s.Health)
	r.GET("/stats", s.Stats)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("status server stopped")

	return nil
}

// Health reports whether the outbox table answers queries.
func (s *Server) Health(c *gin.Context) {
	if _, err := s.stats.CountByStatus(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "owner": s.ownerID})
}

type StatsResponse struct {
	Owner         string                  `json:"owner"`
	Records       map[outboxdb.Status]int `json:"records"`
	ExpiredLeases int                     `json:"expired_leases"`
}

func (s *Server) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := s.stats.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	expired, err := s.stats.CountExpiredLeases(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		Owner:         s.ownerID,
		Records:       counts,
		ExpiredLeases: expired,
	})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
