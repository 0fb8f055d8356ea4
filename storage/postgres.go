package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

const schema = `
	CREATE TABLE IF NOT EXISTS arbitrage_results (
		id          UUID PRIMARY KEY,
		caller      CHAR(42) NOT NULL,
		token_a     CHAR(42) NOT NULL,
		token_b     CHAR(42) NOT NULL,
		dex_buy     CHAR(42) NOT NULL,
		dex_sell    CHAR(42) NOT NULL,
		amount_in   NUMERIC(78, 0) NOT NULL,
		premium     NUMERIC(78, 0) NOT NULL,
		profit      NUMERIC(78, 0) NOT NULL,
		forwarded   BOOLEAN NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL
	)
`

const insertResult = `
	INSERT INTO arbitrage_results (
		id, caller, token_a, token_b, dex_buy, dex_sell,
		amount_in, premium, profit, forwarded, executed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	)
`

// PostgresSink persists results to PostgreSQL
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	DSN    string
	Logger *zap.Logger
}

// NewPostgresSink connects, pings and makes sure the results table exists
func NewPostgresSink(ctx context.Context, cfg *PostgresConfig) (*PostgresSink, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	sink := NewPostgresSinkFromDB(db, cfg.Logger)
	err = sink.EnsureSchema(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sink.logger.Info("postgres-sink-connected")
	return sink, nil
}

// NewPostgresSinkFromDB wraps an open database handle
func NewPostgresSinkFromDB(db *sql.DB, logger *zap.Logger) *PostgresSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSink{db: db, logger: logger}
}

// EnsureSchema creates the results table when missing
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record stores one settled result
func (p *PostgresSink) Record(ctx context.Context, res *types.ArbitrageResult) error {
	_, err := p.db.ExecContext(ctx, insertResult,
		res.ID,
		res.Caller.Hex(),
		res.TokenA.Hex(),
		res.TokenB.Hex(),
		res.DexBuy.Hex(),
		res.DexSell.Hex(),
		res.AmountIn.String(),
		res.Premium.String(),
		res.Profit.String(),
		res.Forwarded,
		res.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	p.logger.Debug("result-stored", zap.String("id", res.ID))
	return nil
}

// Close closes the database connection
func (p *PostgresSink) Close() error {
	p.logger.Info("closing-postgres-sink")
	return p.db.Close()
}
