package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/ports"
)

// DefaultRoleHeader is the header the upstream auth layer sets
const DefaultRoleHeader = "X-Role"

// Server exposes the lifecycle API over HTTP
type Server struct {
	api        ports.LifecycleAPI
	roles      *core.RoleRegistry
	roleHeader string
	addr       string
	logger     *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer creates the HTTP server and its routes
func NewServer(api ports.LifecycleAPI, roles *core.RoleRegistry, addr, roleHeader string, logger *zap.Logger) *Server {
	if roleHeader == "" {
		roleHeader = DefaultRoleHeader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		api:        api,
		roles:      roles,
		roleHeader: roleHeader,
		addr:       addr,
		logger:     logger,
	}
	s.engine = s.newRouter()
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1", resolveRole(s.roles, s.roleHeader))
	v1.GET("/lifecycle", requireCapability(core.CapViewLifecycle), s.getLifecycle)
	v1.GET("/lifecycle/:email", requireCapability(core.CapViewLifecycle), s.getAccount)
	v1.GET("/stats", requireCapability(core.CapViewStats), s.getStats)
	v1.GET("/risks", requireCapability(core.CapViewRisk), s.getRisks)
	v1.POST("/rescan", requireCapability(core.CapForceRescan), s.postRescan)

	return r
}

func (s *Server) getLifecycle(c *gin.Context) {
	report, err := s.api.GetLifecycleView(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	caps := capabilities(c)
	redacted := *report
	redacted.Views = make([]core.AccountLifecycleView, len(report.Views))
	for i, v := range report.Views {
		redacted.Views[i] = core.RedactView(v, caps)
	}
	c.JSON(http.StatusOK, redacted)
}

func (s *Server) getAccount(c *gin.Context) {
	view, err := s.api.GetAccountView(c.Request.Context(), strings.TrimSpace(c.Param("email")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, core.RedactView(*view, capabilities(c)))
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.api.GetDurationAndTrendStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, core.RedactStats(*stats, capabilities(c)))
}

func (s *Server) getRisks(c *gin.Context) {
	risks, err := s.api.GetRiskScores(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"risks": risks})
}

func (s *Server) postRescan(c *gin.Context) {
	result, err := s.api.ForceRescan(c.Request.Context())
	if err != nil && result != nil {
		s.logger.Warn("Forced rescan failed for every account",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Int("errors", result.Errors),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrCacheEmpty):
		status = http.StatusServiceUnavailable
	case errors.Is(err, core.ErrScanPartialFailure), errors.Is(err, core.ErrStoreUnavailable),
		errors.Is(err, core.ErrSourceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Lifecycle API request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Start listens on the configured address
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP API starting", zap.String("address", listener.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
