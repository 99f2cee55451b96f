// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/postgres"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/logging"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/session"
	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/internal/web"
	"github.com/holomush/accountd/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// serveConfig holds command-only flags; everything else comes from config.
type serveConfig struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account web server",
		Long: `Start the web server that handles registration, verification,
login and password reset, plus the metrics/health endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&cfg.autoMigrate, "auto-migrate", true, "apply pending database migrations on startup")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return newMigrator(url)
		}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = connectPool
	}
	if deps.MailerFactory == nil {
		deps.MailerFactory = mail.New
	}
	if deps.RedisClientFactory == nil {
		deps.RedisClientFactory = session.NewRedisClient
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(d web.Deps, opts web.Options) (WebServer, error) {
			srv, err := web.NewServer(d, opts)
			if err != nil {
				return nil, err
			}
			return srv, nil
		}
	}

	conf, err := deps.ConfigLoader(loadOptions(cmd))
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logger := logging.SetDefault("accountd", version, conf.Log.Format, conf.Log.Level)
	logger.Info("starting accountd",
		"http_addr", conf.HTTP.Addr,
		"session_backend", conf.Session.Backend,
		"mail_transport", conf.Mail.Transport,
	)

	if cfg.autoMigrate {
		if err := autoMigrate(conf.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, conf.Database.URL, store.ConnectOptions{
		MaxConns: conf.Database.MaxConns,
		Attempts: conf.Database.ConnectAttempts,
		Backoff:  store.DefaultConnectOptions().Backoff,
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	accounts := postgres.NewAccountRepository(pool)

	svc, err := buildService(ctx, conf, pool, deps, logger)
	if err != nil {
		return err
	}

	codec, closeCodec, err := buildSessionCodec(ctx, conf, accounts, deps)
	if err != nil {
		return err
	}
	defer closeCodec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if conf.HTTP.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(conf.HTTP.MetricsAddr, pool.Ping)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", conf.HTTP.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	webServer, err := deps.WebServerFactory(web.Deps{
		Accounts: svc,
		Sessions: codec,
		Metrics:  metrics,
		Logger:   logger,
	}, web.Options{
		CookieName:     conf.Session.CookieName,
		SessionTTL:     conf.Session.TTL,
		SecureCookies:  conf.HTTP.SecureCookies,
		RequestTimeout: conf.HTTP.RequestTimeout,
	})
	if err != nil {
		stopObservability(obsServer)
		return err
	}
	webErrChan, err := webServer.Start(conf.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("WEB_START_FAILED").With("addr", conf.HTTP.Addr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrChan, "web")
	logger.Info("web server listening", "addr", webServer.Addr())

	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		runPurgeLoop(ctx, svc, conf.Reset.PurgeInterval, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("accountd started")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	<-purgeDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildService assembles the account service from the pool and mail settings.
func buildService(ctx context.Context, conf *config.Config, pool Pool, deps *ServeDeps, logger *slog.Logger) (*account.Service, error) {
	hasher, err := account.NewHasher(conf.Hash.Algorithm, conf.Hash.BcryptCost)
	if err != nil {
		return nil, err
	}

	mailer, err := deps.MailerFactory(ctx, conf.MailerConfig(), logger)
	if err != nil {
		return nil, oops.With("operation", "build mailer").Wrap(err)
	}
	notifier, err := mail.NewNotifier(mailer, conf.Mail.From, conf.HTTP.BaseURL)
	if err != nil {
		return nil, err
	}
	notifier.WithResetExpiry(conf.Reset.Expiry)

	return account.NewService(account.ServiceDeps{
		Accounts:    postgres.NewAccountRepository(pool),
		Resets:      postgres.NewResetRepository(pool),
		Hasher:      hasher,
		Notifier:    notifier,
		Logger:      logger,
		ResetExpiry: conf.Reset.Expiry,
	})
}

// buildSessionCodec returns the configured codec and a func releasing its
// backend.
func buildSessionCodec(ctx context.Context, conf *config.Config, accounts session.AccountFinder, deps *ServeDeps) (session.Codec, func(), error) {
	if conf.Session.Backend == config.SessionBackendRedis {
		client, err := deps.RedisClientFactory(ctx, session.RedisOptions{
			Addr:     conf.Session.Redis.Addr,
			Password: conf.Session.Redis.Password,
			DB:       conf.Session.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		codec, err := session.NewRedisCodec(client, accounts, conf.Session.TTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return codec, func() {
			if err := client.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		}, nil
	}

	codec, err := session.NewJWTCodec(accounts, []byte(conf.Session.Secret), conf.Session.TTL)
	if err != nil {
		return nil, nil, err
	}
	return codec, func() {}, nil
}

// autoMigrate applies pending migrations before the pool is opened.
func autoMigrate(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	slog.Info("running database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	slog.Info("database migrations complete")
	return nil
}

// resetPurger is the slice of account.Service used by runPurgeLoop.
type resetPurger interface {
	PurgeExpiredResets(ctx context.Context) (int64, error)
}

// runPurgeLoop deletes expired reset requests every interval until ctx is
// done. A non-positive interval disables purging.
func runPurgeLoop(ctx context.Context, purger resetPurger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpiredResets(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogErrorContext(ctx, logger, "purge expired resets failed", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired password resets", "count", n)
			}
		}
	}
}

func stopObservability(obsServer ObservabilityServer) {
	if obsServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
