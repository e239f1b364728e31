package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

// Server wraps one go-smtp server for a single listener.
type Server struct {
	server      *gosmtp.Server
	implicitTLS bool
	logger      *slog.Logger
}

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// Address is the listen address, host:port.
	Address string

	// Backend is the shared delivery backend.
	Backend *Backend

	// TLSConfig supplies certificates. Required for implicit-TLS
	// listeners and for STARTTLS listeners; nil on plaintext ones.
	TLSConfig *tls.Config

	// ImplicitTLS wraps the listener in TLS before the first byte
	// (SMTPS). Otherwise TLSConfig, when set, enables STARTTLS.
	ImplicitTLS bool

	// RequireTLS rejects MAIL on sessions that have not upgraded via
	// STARTTLS. Only meaningful on STARTTLS listeners.
	RequireTLS bool

	// EnableSMTPUTF8 advertises the SMTPUTF8 extension.
	EnableSMTPUTF8 bool

	Logger *slog.Logger
}

// NewServer creates a Server for one listener.
func NewServer(cfg ServerConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ImplicitTLS && cfg.TLSConfig == nil {
		return nil, fmt.Errorf("listener %s: implicit TLS requires a TLS config", cfg.Address)
	}

	flavor := FlavorPlain
	if !cfg.ImplicitTLS && cfg.TLSConfig != nil {
		flavor = FlavorStartTLS
	}

	s := gosmtp.NewServer(&ListenerBackend{
		Backend:    cfg.Backend,
		Flavor:     flavor,
		RequireTLS: cfg.RequireTLS,
	})
	s.Addr = cfg.Address
	s.ReadTimeout = 5 * time.Minute
	s.WriteTimeout = 5 * time.Minute
	s.EnableSMTPUTF8 = cfg.EnableSMTPUTF8
	if cfg.TLSConfig != nil {
		s.TLSConfig = cfg.TLSConfig
	}

	return &Server{
		server:      s,
		implicitTLS: cfg.ImplicitTLS,
		logger:      logger.With(slog.String("address", cfg.Address), slog.String("flavor", flavor)),
	}, nil
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.server.Addr
}

// Run starts the server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.implicitTLS {
			s.logger.Info("smtp listener started", slog.String("mode", "tls"))
			err = s.server.ListenAndServeTLS()
		} else {
			s.logger.Info("smtp listener started", slog.String("mode", "plain"))
			err = s.server.ListenAndServe()
		}
		errChan <- err
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("smtp listener shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down smtp listener", slog.String("error", err.Error()))
		}
		return ctx.Err()
	case err := <-errChan:
		return fmt.Errorf("smtp server %s: %w", s.server.Addr, err)
	}
}
