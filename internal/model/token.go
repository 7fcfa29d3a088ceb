package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenInfo identifies a fungible asset on one chain.
type TokenInfo struct {
	Symbol   string          `json:"symbol"`
	Address  *common.Address `json:"address,omitempty"`
	Decimals uint8           `json:"decimals"`
}

// IsSymbol reports whether the token symbol matches, ignoring case.
func (t TokenInfo) IsSymbol(symbol string) bool {
	return strings.EqualFold(t.Symbol, symbol)
}
