package price

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when no oracle knows a token's USD price.
var ErrPriceUnavailable = errors.New("price unavailable")

// Oracle resolves USD prices by symbol and chain.
type Oracle interface {
	Price(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error)

func (f OracleFunc) Price(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error) {
	return f(ctx, symbol, chainID)
}

func unavailable(symbol string, chainID uint64) error {
	return fmt.Errorf("%s on chain %d: %w", symbol, chainID, ErrPriceUnavailable)
}

func normalize(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// Static serves prices from a fixed table, ignoring chain.
type Static map[string]decimal.Decimal

// NewStatic builds a Static table with case-insensitive symbols.
func NewStatic(prices map[string]decimal.Decimal) Static {
	table := make(Static, len(prices))
	for symbol, value := range prices {
		table[normalize(symbol)] = value
	}
	return table
}

func (s Static) Price(_ context.Context, symbol string, chainID uint64) (decimal.Decimal, error) {
	value, ok := s[normalize(symbol)]
	if !ok {
		return decimal.Zero, unavailable(symbol, chainID)
	}
	return value, nil
}

// Chain tries each oracle in order and returns the first price found.
// Errors other than ErrPriceUnavailable stop the lookup.
type Chain []Oracle

func (c Chain) Price(ctx context.Context, symbol string, chainID uint64) (decimal.Decimal, error) {
	for _, oracle := range c {
		if oracle == nil {
			continue
		}
		value, err := oracle.Price(ctx, symbol, chainID)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrPriceUnavailable) {
			return decimal.Zero, err
		}
	}
	return decimal.Zero, unavailable(symbol, chainID)
}
