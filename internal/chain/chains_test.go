package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"bridgeScope/internal/model"
)

func TestNormalizeTokenSubstitutesWrappedETH(t *testing.T) {
	eth := model.TokenInfo{Symbol: "ETH", Decimals: 18}

	got := NormalizeToken(Polygon, eth)
	if got.Symbol != "weth" || got.Address == nil {
		t.Fatalf("expected weth on polygon, got %+v", got)
	}
	if *got.Address != common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619") {
		t.Fatalf("weth address mismatch: %s", got.Address.Hex())
	}

	got = NormalizeToken(Arbitrum, eth)
	if got.Symbol != "ETH" || got.Address != nil {
		t.Fatalf("expected eth kept on arbitrum, got %+v", got)
	}
}

func TestNormalizeTokenKeepsOtherSymbols(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc := model.TokenInfo{Symbol: "usdc", Address: &addr, Decimals: 6}
	if got := NormalizeToken(Polygon, usdc); got.Symbol != "usdc" {
		t.Fatalf("unexpected substitution: %+v", got)
	}
}

func TestChainProperties(t *testing.T) {
	if Forkable(ZkSync) || Forkable(Solana) {
		t.Fatalf("zksync and solana must not be forkable")
	}
	if !Forkable(Base) || !Forkable(999999) {
		t.Fatalf("base and unknown chains are forkable")
	}
	if SyntheticTopUp(Blast) {
		t.Fatalf("blast top-up must be disabled")
	}
	if !IsNative(Polygon, model.TokenInfo{Symbol: "matic"}) {
		t.Fatalf("matic is native on polygon")
	}
	if IsNative(Polygon, model.TokenInfo{Symbol: "eth"}) {
		t.Fatalf("eth is not native on polygon")
	}
	if Name(777) != "chain-777" {
		t.Fatalf("unknown chain name: %s", Name(777))
	}
}
