// Package database persists signals, portfolio state, the trade-outcome
// log and the factor-weight table in PostgreSQL.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logging.Default().WithComponent("database")
	log.Info("connected to database", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info("running database migrations")

	migrations := []string{
		// One row per tracked leveraged/underlying pair.
		`CREATE TABLE IF NOT EXISTS signals (
			leveraged_ticker VARCHAR(10) PRIMARY KEY,
			underlying_ticker VARCHAR(10) NOT NULL,
			name VARCHAR(100) NOT NULL,
			leverage DECIMAL(4, 1) NOT NULL,
			state VARCHAR(10) NOT NULL,
			drawdown DECIMAL(10, 6) NOT NULL DEFAULT 0,
			ath_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			ath_date TIMESTAMP,
			underlying_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			entry_threshold DECIMAL(10, 6) NOT NULL,
			alert_threshold DECIMAL(10, 6) NOT NULL,
			profit_target DECIMAL(10, 6) NOT NULL,
			entry_price DECIMAL(20, 8),
			entry_date TIMESTAMP,
			current_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			unrealized_pl DECIMAL(10, 6) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_state ON signals(state)`,

		// Audit trail of lifecycle transitions.
		`CREATE TABLE IF NOT EXISTS signal_transitions (
			id SERIAL PRIMARY KEY,
			ticker VARCHAR(10) NOT NULL,
			from_state VARCHAR(10) NOT NULL,
			to_state VARCHAR(10) NOT NULL,
			reason TEXT,
			occurred_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_ticker ON signal_transitions(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_occurred_at ON signal_transitions(occurred_at)`,

		// Single-row portfolio aggregate with optimistic-lock version.
		`CREATE TABLE IF NOT EXISTS portfolio (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			cash DECIMAL(20, 8) NOT NULL,
			initial_value DECIMAL(20, 8) NOT NULL,
			realized_pl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS portfolio_positions (
			ticker VARCHAR(10) PRIMARY KEY,
			sector VARCHAR(50) NOT NULL,
			leverage DECIMAL(4, 1) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			notional DECIMAL(20, 8) NOT NULL,
			entry_date TIMESTAMP NOT NULL,
			current_price DECIMAL(20, 8) NOT NULL
		)`,

		// Append-only closed-trade log.
		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id UUID PRIMARY KEY,
			ticker VARCHAR(10) NOT NULL,
			entry_date TIMESTAMP NOT NULL,
			exit_date TIMESTAMP NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			pl_fraction DECIMAL(10, 6) NOT NULL,
			win BOOLEAN NOT NULL,
			factors JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_ticker ON trade_outcomes(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_exit_date ON trade_outcomes(exit_date)`,

		// Learned weights, replaced atomically on each recompute.
		`CREATE TABLE IF NOT EXISTS factor_weights (
			factor VARCHAR(50) PRIMARY KEY,
			weight DECIMAL(10, 6) NOT NULL,
			samples INTEGER NOT NULL,
			win_rate_favorable DECIMAL(10, 6) NOT NULL DEFAULT 0,
			win_rate_other DECIMAL(10, 6) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,

		// Factor map captured when a position was entered, held until the
		// close writes it into the outcome log.
		`CREATE TABLE IF NOT EXISTS entry_factors (
			ticker VARCHAR(10) PRIMARY KEY,
			factors JSONB NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Persisted all-time highs so drawdown survives data-source gaps.
		`CREATE TABLE IF NOT EXISTS ath_records (
			ticker VARCHAR(10) PRIMARY KEY,
			ath_price DECIMAL(20, 8) NOT NULL,
			ath_date TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info("database migrations completed", "count", len(migrations))
	return nil
}
