package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

type Config struct {
	HTTPPort         string        `envconfig:"HTTP_PORT" default:"8080" yaml:"port"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s" yaml:"read_timeout"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s" yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout"`

	// mTLS Configuration
	MTLSEnabled    bool   `envconfig:"HTTP_MTLS_ENABLED" default:"false" yaml:"mtls_enabled"`
	MTLSCACert     string `envconfig:"HTTP_MTLS_CA_CERT" validate:"required_if=MTLSEnabled true" yaml:"mtls_ca_cert"`
	MTLSServerCert string `envconfig:"HTTP_MTLS_SERVER_CERT" validate:"required_if=MTLSEnabled true" yaml:"mtls_server_cert"`
	MTLSServerKey  string `envconfig:"HTTP_MTLS_SERVER_KEY" validate:"required_if=MTLSEnabled true" yaml:"mtls_server_key"`
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	handler http.Handler
	httpSrv *http.Server
	ready   chan net.Addr
}

func New(cfg Config, logger *slog.Logger, handler http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "http_server"),
		handler: handler,
		ready:   make(chan net.Addr, 1),
	}
}

// Ready yields the bound address once the listener is open.
func (s *Server) Ready() <-chan net.Addr { return s.ready }

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.HTTPWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	if s.cfg.MTLSEnabled {
		s.logger.Info("enabling mTLS for HTTP server")
		tlsConfig, err := loadMTLSConfig(s.cfg.MTLSCACert)
		if err != nil {
			return fmt.Errorf("failed to load mTLS config: %w", err)
		}
		s.httpSrv.TLSConfig = tlsConfig
	}

	lis, err := SystemSocket(s.cfg.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen http: %w", err)
	}
	s.ready <- lis.Addr()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", lis.Addr().String(), "mtls", s.cfg.MTLSEnabled)
		var err error
		if s.cfg.MTLSEnabled {
			err = s.httpSrv.ServeTLS(lis, s.cfg.MTLSServerCert, s.cfg.MTLSServerKey)
		} else {
			err = s.httpSrv.Serve(lis)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		return s.shutdown()
	case err := <-errChan:
		return err
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP shutdown error", "error", err)
		return err
	}
	return nil
}

func loadMTLSConfig(caPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("could not read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA cert")
	}

	return &tls.Config{
		ClientCAs:  caCertPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS12,
	}, nil
}

func SystemSocket(port string) (net.Listener, error) {
	return net.Listen("tcp", ":"+port)
}
