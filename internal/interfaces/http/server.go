// Package http exposes the action protocol over a single POST endpoint.
// It decodes requests, authenticates tokens and maps errors to wire codes.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/trip-expense/internal/application/service"
)

// Logger is the key/value logger the adapter writes to
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	defaultExecPath = "/api/exec"
)

// ServerConfig holds listener settings
type ServerConfig struct {
	Host            string
	Port            int
	ExecPath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig listens on :8080 and serves actions at /api/exec
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ExecPath:        defaultExecPath,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Address is the host:port the server binds to
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MetricsSource is the action observer that also serves /metrics
type MetricsSource interface {
	ActionObserver
	Handler() http.Handler
}

// Services are the application services behind the action endpoint
type Services struct {
	Trip   service.TripService
	Review service.ReviewService
	Auth   service.AuthService
	// Metrics is optional; without it /metrics is not mounted
	Metrics MetricsSource
}

// Server binds the gin router to a listener
type Server struct {
	config   ServerConfig
	router   *gin.Engine
	handlers *Handlers
	logger   Logger
	http     *http.Server
}

// NewServer builds the router for the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	if config.ExecPath == "" {
		config.ExecPath = defaultExecPath
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}

	var observer ActionObserver
	if services.Metrics != nil {
		observer = services.Metrics
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(services.Trip, services.Review, services.Auth, observer, logger),
		logger:   logger,
	}

	// Browser clients post cross-origin as text/plain, so no preflight
	// is needed for the action endpoint itself.
	s.router.Use(
		gin.Recovery(),
		s.requestLog(),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:    []string{"Origin", "Content-Type", requestIDHeader},
			ExposeHeaders:   []string{requestIDHeader},
			MaxAge:          12 * time.Hour,
		}),
	)

	s.router.GET("/health", s.handlers.HealthCheck)
	if services.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(services.Metrics.Handler()))
	}
	s.router.POST(config.ExecPath, s.handlers.Exec)

	return s
}

// requestLog tags every request with an id, echoed back in the response
// header, and logs one line once the handler returns.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			requestIDKey, id,
		)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns early if the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.config.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("Trip server listening", "address", s.http.Addr, "exec_path", s.config.ExecPath)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("Trip server failed", "error", err)
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop drains in-flight requests for at most ShutdownTimeout
func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Trip server shutdown incomplete", "error", err)
		return err
	}
	s.logger.Info("Trip server stopped")
	return nil
}

// Router exposes the handler tree, used by tests and in-process clients
func (s *Server) Router() *gin.Engine {
	return s.router
}
