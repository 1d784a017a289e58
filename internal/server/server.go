// Package server runs the file server: static responder with index
// fallback, optional TLS, request activity tracking and the idle watchdog.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/config"
	"github.com/blockadesystems/serve/internal/files"
	"github.com/blockadesystems/serve/internal/model"
)

const defaultShutdownTimeout = 5 * time.Second

var (
	// ErrListen means the listener could not be bound.
	ErrListen = errors.New("server: failed to listen")
	// ErrCertificate means the provisioned record cannot be used for TLS.
	ErrCertificate = errors.New("server: unusable certificate")
)

// FileSystem is the static file provider the server reads from.
type FileSystem interface {
	files.Provider
	FileSystem() http.FileSystem
}

// Option customises a Server.
type Option func(*Server)

// WithPollInterval sets how often the idle watchdog checks for activity.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// WithBrowser sets the function used to open the site once listening.
func WithBrowser(open func(url string) error) Option {
	return func(s *Server) { s.openBrowser = open }
}

// WithFileSystem replaces the provider rooted at the configured folder.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Server) { s.files = fsys }
}

// Server serves one folder until it has been idle for the configured timeout.
type Server struct {
	cfg    *config.ServerConfig
	record *model.CertificateRecord
	files  FileSystem

	echo     *echo.Echo
	activity *Activity
	watchdog *Watchdog
	listener net.Listener

	pollInterval    time.Duration
	shutdownTimeout time.Duration
	openBrowser     func(url string) error

	logger *zap.Logger
}

// New builds a server for cfg. When record is non-nil the server speaks TLS.
func New(cfg *config.ServerConfig, record *model.CertificateRecord, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:             cfg,
		record:          record,
		pollInterval:    DefaultPollInterval,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          logger.With(zap.String("package", "server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.files == nil {
		s.files = files.NewDir(cfg.RootFolder)
	}

	s.activity = NewActivity()
	s.watchdog = NewWatchdog(s.activity, cfg.IdleTimeout, s.pollInterval, s.logger)
	s.echo = echo.New()
	ApplyCommonMiddleware(s.echo, s.activity, s.files, s.logger)
	return s
}

// ApplyCommonMiddleware installs the middleware chain on e: panic recovery,
// request IDs, activity tracking, request logging, index fallback and the
// static file responder over fsys.
func ApplyCommonMiddleware(e *echo.Echo, activity *Activity, fsys FileSystem, logger *zap.Logger) {
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(activity.Middleware())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil && v.Status >= http.StatusInternalServerError {
				logger.Error("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(indexFallback(fsys, logger))
	e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Root:       ".",
		Filesystem: fsys.FileSystem(),
	}))
}

// Handler returns the HTTP handler without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Activity returns the request activity tracker.
func (s *Server) Activity() *Activity {
	return s.activity
}

// Watchdog returns the idle watchdog.
func (s *Server) Watchdog() *Watchdog {
	return s.watchdog
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the address browsers should open.
func (s *Server) URL() string {
	scheme := "http"
	if s.record != nil {
		scheme = "https"
	}
	port := s.cfg.Port
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return fmt.Sprintf("%s://localhost:%d/", scheme, port)
}

// Listen binds the configured port on localhost, wrapping it in TLS when a
// certificate record was provided.
func (s *Server) Listen() error {
	var tlsConfig *tls.Config
	if s.record != nil {
		cert, err := s.record.TLSCertificate()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCertificate, err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	addr := net.JoinHostPort("localhost", strconv.Itoa(s.cfg.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrListen, addr, err)
	}
	s.listener = l

	s.echo.Server.Addr = addr
	if tlsConfig != nil {
		s.echo.Server.TLSConfig = tlsConfig
		s.echo.TLSListener = tls.NewListener(l, tlsConfig)
	} else {
		s.echo.Listener = l
	}

	s.logger.Info("listening",
		zap.String("address", l.Addr().String()),
		zap.Bool("https", tlsConfig != nil),
		zap.String("root", s.cfg.RootFolder),
		zap.Duration("idle_timeout", s.cfg.IdleTimeout))
	return nil
}

// Serve handles requests until the watchdog sees the server idle, ctx is
// cancelled, or the listener fails. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.echo.StartServer(s.echo.Server)
	}()
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- s.watchdog.Run(ctx)
	}()

	if s.openBrowser != nil {
		if err := s.openBrowser(s.URL()); err != nil {
			s.logger.Warn("failed to open browser", zap.String("url", s.URL()), zap.Error(err))
		}
	}

	select {
	case err := <-serveErr:
		cancel()
		<-watchErr
		s.listener.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve failed: %w", err)
		}
		return nil
	case err := <-watchErr:
		if err != nil {
			s.logger.Info("stopping server", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer shutdownCancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown did not finish, closing connections", zap.Error(err))
		s.echo.Close()
	}
	// Shutdown before Serve starts tracking the listener leaves it open.
	s.listener.Close()

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Run binds the listener and serves until shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}
