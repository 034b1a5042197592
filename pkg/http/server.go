package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ShrimpCast/pkg/http/middleware"
	"ShrimpCast/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds the context of every API request. Streaming
	// routes under StreamPrefix are exempt.
	RequestTimeout time.Duration
	StreamPrefix   string
	SlowThreshold  time.Duration
	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins []string
	// MetricsPath exposes Prometheus metrics and enables request metrics;
	// empty disables both.
	MetricsPath string
	Logger      *logger.Logger
}

// Server runs one Echo instance shared by every Handler.
type Server struct {
	echo   *echo.Echo
	srv    *http.Server
	config ServerConfig
}

// CORSMethods are the methods the API answers cross-origin.
var CORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}

func NewServer(handlers []Handler, opts ...ServerOption) *Server {
	cfg := ServerConfig{
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		StreamPrefix:    "/ws/",
		SlowThreshold:   time.Second,
		MetricsPath:     "/metrics",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = ErrorHandler
	e.HidePort = true

	// Streams and the scrape endpoint stay out of request metrics and timeouts.
	unmetered := func(c echo.Context) bool {
		p := c.Request().URL.Path
		return p == cfg.MetricsPath || (cfg.StreamPrefix != "" && strings.HasPrefix(p, cfg.StreamPrefix))
	}

	e.Use(middleware.Recover(cfg.Logger))
	e.Use(middleware.RequestLogging(cfg.Logger, func(c echo.Context) bool {
		return c.Request().URL.Path == cfg.MetricsPath
	}))
	if cfg.MetricsPath != "" {
		e.Use(middleware.Metrics(cfg.Logger, cfg.SlowThreshold, unmetered))
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: CORSMethods,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			MaxAge:       int((10 * time.Minute).Seconds()),
		}))
	}
	if cfg.RequestTimeout > 0 {
		e.Use(echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
			Skipper: unmetered,
			Timeout: cfg.RequestTimeout,
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}

	return &Server{
		echo: e,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      e,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		config: cfg,
	}
}

// Start serves in the background and returns immediately.
func (s *Server) Start() error {
	l := s.config.Logger
	go func() {
		l.Info("http server listening", logger.String("addr", s.srv.Addr))
		if err := s.echo.StartServer(s.srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server error", logger.Error(err))
		}
	}()
	return nil
}

// Stop waits up to ShutdownTimeout for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.config.Logger.Info("http server stopped")
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

func WithRequestTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.RequestTimeout = d }
}

func WithCORS(origins []string) ServerOption {
	return func(c *ServerConfig) { c.CORSOrigins = origins }
}

func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath = path }
}

func WithLogger(l *logger.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}
