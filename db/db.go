// Package db implements the storage repository for the Sandesh mail engine
// on PostgreSQL via pgx. All query methods translate driver errors into the
// sentinel errors in consts, so callers can distinguish transient contention
// (consts.ErrDBBusy, worth retrying) from permanent failures.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandesh-mail/sandesh/config"
	"github.com/sandesh-mail/sandesh/consts"
	"github.com/sandesh-mail/sandesh/logger"
	"github.com/sandesh-mail/sandesh/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Database struct {
	Pool *pgxpool.Pool
}

// NewDatabase connects to PostgreSQL, runs pending migrations and returns the
// ready pool.
func NewDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	sslMode := "disable"
	if cfg.TLSMode {
		sslMode = "require"
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + sslMode,
	}

	logger.Info("connecting to database", "host", cfg.Host, "port", cfg.Port, "name", cfg.Name, "sslmode", sslMode)

	poolConfig, err := pgxpool.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	if cfg.LogQueries {
		poolConfig.ConnConfig.Tracer = &queryTracer{}
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if lifetime, err := cfg.GetMaxConnLifetime(); err == nil {
		poolConfig.MaxConnLifetime = lifetime
	}
	if idle, err := cfg.GetMaxConnIdleTime(); err == nil {
		poolConfig.MaxConnIdleTime = idle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	db := &Database{Pool: pool}

	migrateURL := *u
	migrateURL.Scheme = "pgx5"
	if err := db.migrateUp(migrateURL.String()); err != nil {
		pool.Close()
		return nil, err
	}

	return db, nil
}

func (db *Database) migrateUp(connString string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// StartPoolMetrics starts a goroutine that periodically publishes connection
// pool statistics until the context is cancelled.
func (db *Database) StartPoolMetrics(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Pool.Stat()
				metrics.DBPoolAcquiredConns.Set(float64(stats.AcquiredConns()))
				metrics.DBPoolTotalConns.Set(float64(stats.TotalConns()))
			}
		}
	}()
}

// queryTracer logs every query at debug level when log_queries is enabled.
type queryTracer struct{}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	logger.Debug("query start", "sql", data.SQL, "args", data.Args)
	return ctx
}

func (t *queryTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		logger.Debug("query end", "error", data.Err)
	}
}

// Transient SQLSTATE codes: serialization failure, deadlock detected, lock
// not available, too many connections, query canceled.
func isTransientCode(code string) bool {
	switch code {
	case "40001", "40P01", "55P03", "53300", "57014":
		return true
	}
	return false
}

// mapError translates driver errors into the sentinel errors the rest of the
// engine branches on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return consts.ErrDBNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", consts.ErrDBUniqueViolation, pgErr.ConstraintName)
		}
		if isTransientCode(pgErr.Code) {
			return fmt.Errorf("%w: sqlstate %s", consts.ErrDBBusy, pgErr.Code)
		}
		return err
	}

	if pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", consts.ErrDBBusy, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", consts.ErrDBBusy, err)
	}

	return err
}

func observeQuery(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.DBQueriesTotal.WithLabelValues(operation, status).Inc()
}
