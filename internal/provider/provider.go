package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bridgeScope/internal/model"
)

// QuoteRequest is what every provider is asked to price.
type QuoteRequest struct {
	SourceChainID uint64
	DestChainID   uint64
	Account       common.Address
	SourceToken   model.TokenInfo
	DestToken     model.TokenInfo
	AmountIn      *big.Int
	// TotalProviders is the number of providers queried in this aggregation.
	// A provider queried alone reports errors instead of declining.
	TotalProviders int
}

// Pinned reports whether the provider is the only one being queried.
func (r QuoteRequest) Pinned() bool {
	return r.TotalProviders == 1
}

// QuoteProvider fetches a quote for a bridge request.
// A nil quote with a nil error means the provider declines the request.
type QuoteProvider interface {
	Quote(ctx context.Context, req QuoteRequest) (*model.Quote, error)
}

// ProviderFunc adapts a function to QuoteProvider.
type ProviderFunc func(ctx context.Context, req QuoteRequest) (*model.Quote, error)

func (f ProviderFunc) Quote(ctx context.Context, req QuoteRequest) (*model.Quote, error) {
	return f(ctx, req)
}

// Named pairs a provider with its canonical id.
type Named struct {
	ID       string
	Provider QuoteProvider
}
