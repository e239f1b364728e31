package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mail4one/mail4one/internal/config"
	"github.com/mail4one/mail4one/internal/logging"
	"github.com/mail4one/mail4one/internal/metrics"
	"github.com/mail4one/mail4one/internal/pop3"
	"github.com/mail4one/mail4one/internal/router"
	"github.com/mail4one/mail4one/internal/server"
	"github.com/mail4one/mail4one/internal/smtp"
)

// runServe loads the configuration and runs every configured listener
// until a termination signal or the first listener failure.
func runServe(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logWriter, closeLog, err := logging.Open(cfg.Logging.Logfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening logfile: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	logger := logging.NewLogger(logWriter, cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics server error", "error", err.Error())
			}
		}()
		logger.Info("metrics enabled", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	if err := serve(ctx, cfg, logger, collector); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// serve builds the shared components and runs all listeners. The first
// listener error cancels the rest.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector metrics.Collector) error {
	shared, err := pop3.NewSharedState(cfg.MailsPath, cfg.Users)
	if err != nil {
		return fmt.Errorf("loading user table: %w", err)
	}

	rt, err := router.New(cfg.Matches, cfg.Boxes)
	if err != nil {
		return fmt.Errorf("compiling routing rules: %w", err)
	}

	var defaultTLS *tls.Config
	if cfg.DefaultTLS != nil {
		defaultTLS, err = config.LoadTLS(cfg.DefaultTLS)
		if err != nil {
			return fmt.Errorf("loading default TLS context: %w", err)
		}
	}

	backend, err := smtp.NewBackend(smtp.BackendConfig{
		Router:    rt,
		MailsPath: cfg.MailsPath,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	type runner interface {
		Run(ctx context.Context) error
	}
	var runners []runner

	debug := logging.ParseLevel(cfg.Logging.Level) == slog.LevelDebug

	for i, srv := range cfg.Servers {
		common := srv.Common()
		address := net.JoinHostPort(cfg.ResolveHost(common.Host), strconv.Itoa(common.Port))

		tlsCfg, err := config.ResolveTLS(common.TLS, defaultTLS)
		if err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}

		switch c := srv.(type) {
		case *config.PopCfg:
			listener := server.NewListener(server.ListenerConfig{
				Address:        address,
				TLSConfig:      tlsCfg,
				LogTransaction: debug,
				Logger:         logger,
				Handler: pop3.Handler(pop3.HandlerConfig{
					Shared:    shared,
					Timeout:   time.Duration(c.TimeoutSeconds) * time.Second,
					Collector: collector,
				}),
			})
			runners = append(runners, listenerRunner{listener})

		case *config.SmtpCfg:
			smtpSrv, err := smtp.NewServer(smtp.ServerConfig{
				Address:        address,
				Backend:        backend,
				TLSConfig:      tlsCfg,
				ImplicitTLS:    tlsCfg != nil,
				EnableSMTPUTF8: c.SMTPUTF8,
				Logger:         logger,
			})
			if err != nil {
				return fmt.Errorf("servers[%d]: %w", i, err)
			}
			runners = append(runners, smtpSrv)

		case *config.SmtpStartTLSCfg:
			smtpSrv, err := smtp.NewServer(smtp.ServerConfig{
				Address:        address,
				Backend:        backend,
				TLSConfig:      tlsCfg,
				RequireTLS:     c.RequireStartTLS,
				EnableSMTPUTF8: c.SMTPUTF8,
				Logger:         logger,
			})
			if err != nil {
				return fmt.Errorf("servers[%d]: %w", i, err)
			}
			runners = append(runners, smtpSrv)

		default:
			return fmt.Errorf("servers[%d]: unsupported server type %T", i, srv)
		}
	}

	if len(runners) == 0 {
		return errors.New("no servers configured")
	}

	logger.Info("starting mail4one", "listeners", len(runners), "mails_path", cfg.MailsPath)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, len(runners))
	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			if err := r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- err
				cancel()
			}
		}(r)
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
		logger.Error("listener error", "error", err.Error())
	}
	if firstErr != nil {
		return firstErr
	}

	logger.Info("all listeners stopped")
	return ctx.Err()
}

// listenerRunner adapts server.Listener's Start to the runner interface.
type listenerRunner struct {
	l *server.Listener
}

func (r listenerRunner) Run(ctx context.Context) error {
	return r.l.Start(ctx)
}
