package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/session"
	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader resolves and validates configuration.
	// Default: config.Load
	ConfigLoader func(opts config.LoadOptions) (*config.Config, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error)

	// MailerFactory builds the configured mail transport.
	// Default: mail.New
	MailerFactory func(ctx context.Context, cfg mail.Config, logger *slog.Logger) (mail.Mailer, error)

	// RedisClientFactory connects the redis session backend.
	// Default: session.NewRedisClient
	RedisClientFactory func(ctx context.Context, opts session.RedisOptions) (*redis.Client, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// WebServerFactory creates the account web server.
	// Default: web.NewServer
	WebServerFactory func(deps web.Deps, opts web.Options) (WebServer, error)
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// DatabaseURLLoader resolves the database URL.
	// Default: config.LoadDatabaseURL
	DatabaseURLLoader func(opts config.LoadOptions) (string, error)

	// MigratorFactory creates a migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// AccountDeps contains injectable dependencies for the account command.
type AccountDeps struct {
	// DatabaseURLLoader resolves the database URL.
	// Default: config.LoadDatabaseURL
	DatabaseURLLoader func(opts config.LoadOptions) (string, error)

	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error)

	// PasswordReader reads a new password from the terminal.
	// Default: readPassword
	PasswordReader func(prompt string) (string, error)
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator wraps the methods used for startup migration.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	AutoMigrator
	Rollback(steps int) error
	Force(version int) error
	Status() (store.SchemaStatus, error)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// WebServer interface wraps the methods used from web.Server.
type WebServer interface {
	Start(addr string) (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// connectPool is the default PoolFactory.
func connectPool(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error) {
	pool, err := store.Connect(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// newMigrator is the default MigratorFactory.
func newMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}
