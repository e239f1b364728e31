package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mail4one/mail4one/internal/logging"
)

// ConnectionHandler is called for each new connection. It receives the
// context and connection and should run the protocol session to
// completion. The listener closes the connection afterwards.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// Listener manages a single TCP listener, optionally wrapped in TLS
// before the first byte.
type Listener struct {
	address   string
	tlsConfig *tls.Config
	connCfg   ConnectionConfig
	handler   ConnectionHandler
	logger    *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// ListenerConfig holds configuration for creating a new Listener.
type ListenerConfig struct {
	Address        string
	TLSConfig      *tls.Config
	LogTransaction bool
	Logger         *slog.Logger
	Handler        ConnectionHandler
}

// NewListener creates a new Listener with the given configuration.
func NewListener(cfg ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode := "plain"
	if cfg.TLSConfig != nil {
		mode = "tls"
	}

	return &Listener{
		address:   cfg.Address,
		tlsConfig: cfg.TLSConfig,
		connCfg: ConnectionConfig{
			LogTransaction: cfg.LogTransaction,
			Logger:         logger,
		},
		handler: cfg.Handler,
		logger:  logging.WithListener(logger, cfg.Address, mode),
	}
}

// Address returns the configured listen address.
func (l *Listener) Address() string {
	return l.address
}

// Start begins listening for connections. It blocks until the context is
// cancelled or an unrecoverable accept error occurs.
func (l *Listener) Start(ctx context.Context) error {
	var err error
	var ln net.Listener

	if l.tlsConfig != nil {
		ln, err = tls.Listen("tcp", l.address, l.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", l.address)
	}
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	l.logger.Info("listener started")

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- l.acceptLoop(ctx)
	}()

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case err := <-acceptErr:
		result = err
	}

	l.logger.Info("listener shutting down")

	if err := l.Close(); err != nil {
		l.logger.Debug("error closing listener", slog.String("error", err.Error()))
	}

	// Wait for in-flight connections to complete
	l.wg.Wait()

	l.logger.Info("listener stopped")
	return result
}

// acceptLoop accepts connections until the listener is closed.
func (l *Listener) acceptLoop(ctx context.Context) error {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()

			if closed {
				return nil
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				l.logger.Warn("temporary accept error", slog.String("error", err.Error()))
				time.Sleep(5 * time.Millisecond)
				continue
			}

			return err
		}

		l.wg.Add(1)
		go func(netConn net.Conn) {
			defer l.wg.Done()
			l.handleConn(ctx, netConn)
		}(conn)
	}
}

// handleConn wraps one accepted connection and runs the handler.
func (l *Listener) handleConn(ctx context.Context, netConn net.Conn) {
	conn := NewConnection(netConn, l.connCfg)
	defer conn.Close()

	ctx = logging.NewContext(ctx, conn.Logger())
	l.handler(ctx, conn)
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
