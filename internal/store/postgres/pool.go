// Package postgres implements store.Repository against PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfig configures the underlying connection pool.
type PoolConfig struct {
	DatabaseURL    string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
}

// NewPool opens a pgxpool.Pool, retrying the initial connection with
// exponential backoff so a slow-to-start database doesn't fail the
// process on its first attempt.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger = logger.With(zap.String("component", "postgres-pool"))

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.HealthCheckPeriod = time.Minute

	const maxAttempts = 5
	backoff := time.Second
	var pool *pgxpool.Pool

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		pool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		cancel()

		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			pingCancel()
			if err == nil {
				logger.Info("database connection established")
				return pool, nil
			}
			pool.Close()
		}

		logger.Warn("database connection failed", zap.Error(err), zap.Int("attempt", attempt))
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during connection retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", maxAttempts, err)
}
