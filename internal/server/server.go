package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/logging"
	"github.com/muurk/forcedmode/internal/metrics"
	"github.com/muurk/forcedmode/internal/mode"
	"github.com/muurk/forcedmode/internal/slot"
)

// ShutdownTimeout bounds a graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // HTTPS is enabled when both CertPath and KeyPath are set
	KeyPath  string
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the HTTP boundary around the device slot.
type Server struct {
	config    *Config
	slot      *slot.Slot[mode.Driver]
	history   *history.Store
	metrics   *metrics.Metrics
	hub       *hub
	mux       *http.ServeMux
	handler   http.Handler
	tlsConfig *tls.Config
	http      *http.Server
	startedAt time.Time
}

// New creates a server for the device held by sl. store and m may be nil,
// which disables run history and metrics respectively.
func New(config *Config, sl *slot.Slot[mode.Driver], store *history.Store, m *metrics.Metrics) (*Server, error) {
	if sl == nil {
		return nil, errors.New("server needs a device slot")
	}
	if m == nil {
		m = metrics.New(false)
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	s := &Server{
		config:    config,
		slot:      sl,
		history:   store,
		metrics:   m,
		hub:       newHub(m),
		mux:       http.NewServeMux(),
		tlsConfig: tlsConfig,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	s.handler = withRequestID(withRecover(withLogging(s.mux)))
	s.http = &http.Server{
		Handler:           s.handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.SetAvailable(sl.Available())

	return s, nil
}

// Handler returns the server's HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until a shutdown
// signal or a serve error.
func (s *Server) Start() error {
	addr := s.config.Addr()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	logging.Info("Starting forcedmode server",
		zap.String("addr", addr),
		zap.String("device_id", s.slot.DeviceID()),
		zap.Any("tls", GetTLSInfo(s.tlsConfig)),
		zap.Bool("history", s.history != nil),
		zap.Bool("metrics", s.metrics.Enabled()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ln)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve serves HTTP on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight orchestrations to
// put the device back and disconnects event clients.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = s.http.Close()
	} else {
		logging.Info("All requests completed gracefully")
	}

	s.hub.close()
	logging.Sync()

	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// EventClients returns the number of connected event stream clients.
func (s *Server) EventClients() int {
	return s.hub.count()
}
