package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is a single unsigned call description.
type Transaction struct {
	To    common.Address
	Value *big.Int
	Data  []byte
	Gas   *uint64
}

type transactionJSON struct {
	To    string          `json:"to"`
	Value json.RawMessage `json:"value,omitempty"`
	Data  string          `json:"data"`
	Gas   json.RawMessage `json:"gas,omitempty"`
}

// MarshalJSON encodes quantities and calldata as 0x-prefixed hex.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	out := struct {
		To    string  `json:"to"`
		Value string  `json:"value"`
		Data  string  `json:"data"`
		Gas   *string `json:"gas,omitempty"`
	}{
		To:    tx.To.Hex(),
		Value: hexutil.EncodeBig(tx.ValueOrZero()),
		Data:  hexutil.Encode(tx.Data),
	}
	if tx.Gas != nil {
		gas := hexutil.EncodeUint64(*tx.Gas)
		out.Gas = &gas
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts hex or decimal quantities, as strings or numbers.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !common.IsHexAddress(raw.To) {
		return fmt.Errorf("invalid tx target %q", raw.To)
	}
	value, err := ParseQuantity(raw.Value)
	if err != nil {
		return fmt.Errorf("tx value: %w", err)
	}
	var calldata []byte
	if raw.Data != "" && raw.Data != "0x" {
		calldata, err = hexutil.Decode(raw.Data)
		if err != nil {
			return fmt.Errorf("tx data: %w", err)
		}
	}
	var gas *uint64
	if len(raw.Gas) > 0 && string(raw.Gas) != "null" {
		gasBig, err := ParseQuantity(raw.Gas)
		if err != nil {
			return fmt.Errorf("tx gas: %w", err)
		}
		if !gasBig.IsUint64() {
			return fmt.Errorf("tx gas overflows uint64: %s", gasBig)
		}
		g := gasBig.Uint64()
		gas = &g
	}

	*tx = Transaction{
		To:    common.HexToAddress(raw.To),
		Value: value,
		Data:  calldata,
		Gas:   gas,
	}
	return nil
}

// ValueOrZero returns the call value, treating nil as zero.
func (tx Transaction) ValueOrZero() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}

// ParseQuantity decodes a JSON quantity given as a number, a decimal string or a 0x hex string.
func ParseQuantity(raw json.RawMessage) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return new(big.Int), nil
	}
	text = strings.Trim(text, `"`)
	return ParseAmount(text)
}

// ParseAmount decodes a decimal or 0x hex integer string.
func ParseAmount(text string) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		if len(text) == 2 {
			return new(big.Int), nil
		}
		value, ok := new(big.Int).SetString(text[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex quantity %q", text)
		}
		return value, nil
	}
	value, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal quantity %q", text)
	}
	return value, nil
}
