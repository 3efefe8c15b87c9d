// Package db builds the sink connection pool shared by the consumer loop
// and the read API.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/regionsync/inbound-sync/internal/migrations"
	"github.com/regionsync/inbound-sync/internal/retry"
)

// PgxIface is the query surface shared by pgx pools, connections and
// transactions.
type PgxIface interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
}

// PgxPoolIface is the interface representing a pgx pool, used so tests can
// substitute pgxmock without touching a real database.
type PgxPoolIface interface {
	PgxIface
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
	Config() *pgxpool.Config
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

// Options configures the pool beyond what the DSN carries.
type Options struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	// Production enables TLS with certificate verification disabled, the
	// convention hosted Postgres providers expect under NODE_ENV=production.
	Production bool
}

// DefaultOptions returns the recommended pool sizing: 20 connections, a
// 30s idle timeout, and a 2s connect timeout.
func DefaultOptions() Options {
	return Options{
		MaxConns:        20,
		MaxConnIdleTime: 30 * time.Second,
		ConnectTimeout:  2 * time.Second,
	}
}

type ConnConfigCallback = func(*pgxpool.Config) error

// New builds a connection pool from a DSN and options.
func New(ctx context.Context, connStr string, opts Options, callbacks ...ConnConfigCallback) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, connConfig, opts, callbacks...)
}

// NewWithConfig creates a new pool with a given config, applying the
// shared defaults (application name, notice logging, idle timeout) every
// caller wants regardless of DSN.
func NewWithConfig(ctx context.Context, connConfig *pgxpool.Config, opts Options, callbacks ...ConnConfigCallback) (*pgxpool.Pool, error) {
	logger := logrus.StandardLogger()
	if connConfig.ConnConfig.ConnectTimeout == 0 {
		connConfig.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.MaxConns > 0 {
		connConfig.MaxConns = opts.MaxConns
	}
	if opts.MaxConnIdleTime > 0 {
		connConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	connConfig.ConnConfig.RuntimeParams["application_name"] = "inbound-sync"
	connConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		logger.WithField("severity", n.Severity).WithField("notice", n.Message).Info("sink notice received")
	}
	if opts.Production {
		connConfig.ConnConfig.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	for _, f := range callbacks {
		if err := f(connConfig); err != nil {
			return nil, err
		}
	}
	return pgxpool.NewWithConfig(ctx, connConfig)
}

// NewWithRetry builds the pool with a bounded startup retry. Unlike the
// message bus, the sink is not optional at startup: exhausting the retry
// budget is a fatal, non-zero-exit condition.
func NewWithRetry(ctx context.Context, connStr string, opts Options, callbacks ...ConnConfigCallback) (*pgxpool.Pool, error) {
	config := retry.PostgreSQLDefaults()

	var pool *pgxpool.Pool
	err := retry.WithOperation(ctx, config, func() error {
		p, attemptErr := New(ctx, connStr, opts, callbacks...)
		if attemptErr != nil {
			return attemptErr
		}
		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()
			return pingErr
		}
		pool = p
		return nil
	}, "sink connect")

	if err != nil {
		logrus.WithError(err).Error("failed to establish sink connection after all retries")
		return nil, err
	}
	return pool, nil
}

// ApplyMigrations checks and applies database migrations if needed.
func ApplyMigrations(ctx context.Context, conn *pgx.Conn) error {
	needsMigration, err := migrations.NeedsUpgrade(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}

	if needsMigration {
		logrus.Info("applying sink schema migrations")
		if err := migrations.Apply(ctx, conn); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		logrus.Info("sink schema migrations completed")
	} else {
		logrus.Info("sink schema is up to date")
	}

	return nil
}
