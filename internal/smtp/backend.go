// Package smtp implements the inbound SMTP service on top of the
// emersion/go-smtp engine: one shared delivery backend fanning messages
// out to local Maildir mailboxes through the address router, fronted by
// per-listener flavors (plaintext, STARTTLS, implicit TLS).
package smtp

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/emersion/go-smtp"
	"github.com/mail4one/mail4one/internal/metrics"
	"github.com/mail4one/mail4one/internal/router"
)

// Listener flavors, recorded in the X-SSL header of delivered messages.
const (
	// FlavorPlain covers both plaintext and implicit-TLS listeners;
	// for the latter the transport is already encrypted before SMTP
	// starts, so there is no STARTTLS step to record.
	FlavorPlain = "plain"

	// FlavorStartTLS marks listeners that offer the STARTTLS upgrade.
	FlavorStartTLS = "starttls"
)

// Backend is the delivery backend shared by every SMTP listener. It
// routes accepted messages to mailboxes and stages message bodies in a
// private spool directory so each message is written out once no matter
// how many mailboxes receive it.
type Backend struct {
	router    *router.Router
	mailsPath string
	spoolDir  string
	collector metrics.Collector
	logger    *slog.Logger
}

// BackendConfig holds configuration for creating a Backend.
type BackendConfig struct {
	Router    *router.Router
	MailsPath string
	Collector metrics.Collector
	Logger    *slog.Logger
}

// NewBackend creates the shared delivery backend and its spool
// directory. The spool lives under the OS temp directory and is removed
// by Close.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	spool, err := os.MkdirTemp("", "mail4one-spool-*")
	if err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	return &Backend{
		router:    cfg.Router,
		mailsPath: cfg.MailsPath,
		spoolDir:  spool,
		collector: collector,
		logger:    logger,
	}, nil
}

// Close removes the spool directory.
func (b *Backend) Close() error {
	return os.RemoveAll(b.spoolDir)
}

// ListenerBackend binds the shared Backend to one listener flavor. It
// implements the smtp.Backend interface.
type ListenerBackend struct {
	*Backend

	// Flavor is recorded in the X-SSL header: FlavorPlain or
	// FlavorStartTLS.
	Flavor string

	// RequireTLS rejects MAIL until the session has upgraded to TLS.
	RequireTLS bool
}

// NewSession is called for each new connection.
func (b *ListenerBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.collector.ConnectionOpened(metrics.ProtoSmtp)

	clientAddr := ""
	if conn := c.Conn(); conn != nil && conn.RemoteAddr() != nil {
		clientAddr = conn.RemoteAddr().String()
	}
	if _, ok := c.TLSConnectionState(); ok {
		b.collector.TLSConnectionEstablished(metrics.ProtoSmtp)
	}

	return &Session{
		backend:    b.Backend,
		flavor:     b.Flavor,
		requireTLS: b.RequireTLS,
		secured: func() bool {
			_, ok := c.TLSConnectionState()
			return ok
		},
		logger: b.logger.With(slog.String("client", clientAddr)),
	}, nil
}
