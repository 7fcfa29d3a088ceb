package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Quote is an unproven claim from one provider about one bridge request.
type Quote struct {
	AmountOut   *big.Int        `json:"amountOut"`
	Txs         []Transaction   `json:"txs"`
	Source      string          `json:"source"`
	SkipApprove bool            `json:"skipApprove"`
	USDFee      decimal.Decimal `json:"usdFee"`
}

// BridgeRoute is a quote whose transactions were replayed against a sandbox.
// Only the validator creates routes.
type BridgeRoute struct {
	Txs          []Transaction   `json:"txs"`
	Source       string          `json:"source"`
	AmountIn     *big.Int        `json:"amountIn"`
	AmountOut    *big.Int        `json:"amountOut"`
	AmountOutUSD decimal.Decimal `json:"amountOutUsd"`
	SkipApprove  bool            `json:"skipApprove"`
}
