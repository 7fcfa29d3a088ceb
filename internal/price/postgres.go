package price

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const latestPriceQuery = `
	SELECT price_usd::text
	FROM token_prices
	WHERE chain_id = $1 AND lower(symbol) = lower($2)
	ORDER BY updated_at DESC
	LIMIT 1
`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads the latest USD price from the token_prices table.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   rowQuerier
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, db: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Price(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error) {
	var text string
	err := s.db.QueryRow(ctx, latestPriceQuery, int64(chainID), symbol).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, unavailable(symbol, chainID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query price %s on chain %d: %w", symbol, chainID, err)
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", text, err)
	}
	return value, nil
}
