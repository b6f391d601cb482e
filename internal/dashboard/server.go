// Package dashboard serves the affiliate analytics API over HTTP.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"affiliateflow/config"
	"affiliateflow/internal/warehouse"
	"affiliateflow/logger"
)

// Store is the slice of the warehouse the dashboard reads from.
type Store interface {
	ETLStatus(ctx context.Context) ([]warehouse.ETLStatusRow, error)
	TopAffiliates(ctx context.Context, limit int) ([]warehouse.TopAffiliateRow, error)
	AffiliateMetrics(ctx context.Context) ([]warehouse.AffiliateMetricsRow, error)
	ETLIssues(ctx context.Context) ([]warehouse.ETLIssueRow, error)
}

// Server hosts the Gin-powered dashboard API.
type Server struct {
	cfg        config.DashboardConfig
	store      Store
	log        *logger.Log
	httpServer *http.Server
}

// NewServer constructs a dashboard server when the feature is enabled. When
// disabled the returned server is nil.
func NewServer(cfg config.DashboardConfig, store Store, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}
	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 40
	}
	return &Server{
		cfg:   cfg,
		store: store,
		log:   log,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("dashboard server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	router.Use(s.rateLimitMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/etl-status", s.handleETLStatus)
		api.GET("/top-affiliates", s.handleTopAffiliates)
		api.GET("/affiliate-metrics", s.handleAffiliateMetrics)
		api.GET("/etl-issues", s.handleETLIssues)
	}

	return router, nil
}

// rateLimitMiddleware shields the warehouse from dashboard refresh storms.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleETLStatus(c *gin.Context) {
	rows, err := s.store.ETLStatus(c.Request.Context())
	if err != nil {
		s.fail(c, "etl-status", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleTopAffiliates(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	rows, err := s.store.TopAffiliates(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "top-affiliates", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAffiliateMetrics(c *gin.Context) {
	rows, err := s.store.AffiliateMetrics(c.Request.Context())
	if err != nil {
		s.fail(c, "affiliate-metrics", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleETLIssues(c *gin.Context) {
	rows, err := s.store.ETLIssues(c.Request.Context())
	if err != nil {
		s.fail(c, "etl-issues", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) fail(c *gin.Context, endpoint string, err error) {
	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"endpoint": endpoint,
	}).WithError(err).Error("dashboard query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
