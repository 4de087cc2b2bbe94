package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/captioncast/captioncast/internal/errors"
	"github.com/captioncast/captioncast/internal/health"
	"github.com/captioncast/captioncast/internal/logging"
	"github.com/captioncast/captioncast/internal/metrics"
	"github.com/captioncast/captioncast/internal/render"
	"github.com/captioncast/captioncast/internal/tiktok"
	"github.com/gin-gonic/gin"
)

// Renderer produces captioned videos.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Result, error)
}

// TokenBroker runs the provider OAuth flows.
type TokenBroker interface {
	StartAuthorization(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, code, state string) (string, error)
	AccessToken(ctx context.Context) (*tiktok.TokenResponse, error)
}

// ExpiryStatus reports pending file deletions.
type ExpiryStatus interface {
	Pending() int
}

// HealthChecker runs readiness checks.
type HealthChecker interface {
	Run() health.Report
}

// Dependencies are the collaborators the server routes to. Metrics and
// Logger default to fresh instances when nil.
type Dependencies struct {
	Renderer Renderer
	Broker   TokenBroker
	Expiry   ExpiryStatus
	Health   HealthChecker
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	config     *config.Config
	renderer   Renderer
	broker     TokenBroker
	expiry     ExpiryStatus
	health     HealthChecker
	metrics    *metrics.Metrics
	logger     *logging.Logger
	httpServer *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)

	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics(cfg.Metrics.Namespace)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.WithLevel(logging.ParseLevel(cfg.Server.LogLevel)))
	}

	server := &Server{
		router:   gin.New(),
		config:   cfg,
		renderer: deps.Renderer,
		broker:   deps.Broker,
		expiry:   deps.Expiry,
		health:   deps.Health,
		metrics:  m,
		logger:   logger.Component("api"),
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(loggingMiddleware(server.logger))
	server.router.Use(metrics.Middleware(m, server.logger))
	server.router.Use(recoveryMiddleware(server.logger))
	server.router.Use(bodyLimitMiddleware(cfg.Server.MaxBodyBytes))

	server.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	server.httpServer = NewHTTPServer(addr, server.router, cfg.Server)
	return server
}

// recoveryMiddleware turns panics into the generic 500 body.
func recoveryMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.ErrorWithContext(c.Request.Context(), "panic recovered", "panic", fmt.Sprint(recovered), "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Error:  "server error",
			Detail: fmt.Sprint(recovered),
		})
	})
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := logging.CorrelationIDFromHeader(c.GetHeader(logging.HeaderCorrelationID))
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(logging.HeaderCorrelationID, correlationID)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

// bodyLimitMiddleware limits the size of request bodies
func bodyLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxSize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	s.router.POST("/render", s.handleRender)

	s.router.GET("/auth/tiktok/start", s.handleTikTokStart)
	s.router.GET("/auth/tiktok/callback", s.handleTikTokCallback)
	s.router.GET("/tiktok/access-token", s.handleAccessToken)

	public := s.config.Render.PublicPath + "/:file"
	s.router.GET(public, s.handlePublicFile)
	s.router.HEAD(public, s.handlePublicFile)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: "not found"})
	})
	s.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
}

// Run starts the HTTP server and blocks until it stops. A Shutdown makes
// it return nil.
func (s *Server) Run() error {
	addr := s.httpServer.Addr
	s.logger.Info("starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown gracefully shuts down the server. In-flight renders are allowed
// to finish until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return &errors.ErrServerShutdown{Err: err}
	}
	s.logger.Info("graceful shutdown completed")
	return nil
}
