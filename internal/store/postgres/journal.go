package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nh-chitose/r2-re/internal/domain"
)

// TradeJournal implements domain.TradeJournal using PostgreSQL. Each record
// stores the full order set as JSONB so partial fills and recovery orders are
// preserved verbatim.
type TradeJournal struct {
	pool *pgxpool.Pool
}

// NewTradeJournal creates a TradeJournal backed by the given connection pool.
func NewTradeJournal(pool *pgxpool.Pool) *TradeJournal {
	return &TradeJournal{pool: pool}
}

// Record inserts one completed trade attempt.
func (j *TradeJournal) Record(ctx context.Context, rec domain.TradeRecord) error {
	orders, err := json.Marshal(rec.Orders)
	if err != nil {
		return fmt.Errorf("postgres: encode trade orders: %w", err)
	}
	const query = `
		INSERT INTO trades (id, symbol, profit, commission, closable, orders, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := j.pool.Exec(ctx, query,
		rec.ID, rec.Symbol, rec.Profit, rec.Commission, rec.Closable, orders, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TradeJournal = (*TradeJournal)(nil)
