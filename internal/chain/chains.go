package chain

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"bridgeScope/internal/model"
)

// Chain ids the engine knows about.
const (
	Ethereum  uint64 = 1
	Optimism  uint64 = 10
	BSC       uint64 = 56
	Solana    uint64 = 101
	Polygon   uint64 = 137
	ZkSync    uint64 = 324
	Mantle    uint64 = 5000
	Base      uint64 = 8453
	Mode      uint64 = 34443
	Arbitrum  uint64 = 42161
	Avalanche uint64 = 43114
	Linea     uint64 = 59144
	Blast     uint64 = 81457
)

// PseudoNativeSymbol is the symbol callers use for "the ETH of this chain".
const PseudoNativeSymbol = "eth"

// Info describes the simulation-relevant properties of a chain.
type Info struct {
	Name         string
	NativeSymbol string
	// Forkable is false for chains the sandbox service cannot fork.
	Forkable bool
	// SyntheticTopUp is false where balance-slot overrides are known to misbehave.
	SyntheticTopUp bool
	WETH           *model.TokenInfo
}

var chains = map[uint64]Info{
	Ethereum:  {Name: "ethereum", NativeSymbol: "ETH", Forkable: true, SyntheticTopUp: true},
	Optimism:  {Name: "optimism", NativeSymbol: "ETH", Forkable: true, SyntheticTopUp: true},
	BSC:       {Name: "bsc", NativeSymbol: "BNB", Forkable: true, SyntheticTopUp: true, WETH: weth("0x2170Ed0880ac9A755fd29B2688956BD959F933F8")},
	Solana:    {Name: "solana", NativeSymbol: "SOL"},
	Polygon:   {Name: "polygon", NativeSymbol: "MATIC", Forkable: true, SyntheticTopUp: true, WETH: weth("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")},
	ZkSync:    {Name: "zksync", NativeSymbol: "ETH"},
	Mantle:    {Name: "mantle", NativeSymbol: "MNT", Forkable: true, SyntheticTopUp: true, WETH: weth("0xdEAddEaDdeadDEadDEADDEAddEADDEAddead1111")},
	Base:      {Name: "base", NativeSymbol: "ETH", Forkable: true, SyntheticTopUp: true},
	Mode:      {Name: "mode", NativeSymbol: "ETH", Forkable: true, SyntheticTopUp: true},
	Arbitrum:  {Name: "arbitrum", NativeSymbol: "ETH", Forkable: true, SyntheticTopUp: true},
	Avalanche: {Name: "avalanche", NativeSymbol: "AVAX", Forkable: true, SyntheticTopUp: true, WETH: weth("0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB")},
	Linea:     {Name: "linea", NativeSymbol: "ETH", Forkable: true, SyntheticTopUp: true},
	Blast:     {Name: "blast", NativeSymbol: "ETH", Forkable: true},
}

func weth(address string) *model.TokenInfo {
	addr := common.HexToAddress(address)
	return &model.TokenInfo{Symbol: "weth", Address: &addr, Decimals: 18}
}

// Lookup returns the chain info for id.
func Lookup(id uint64) (Info, bool) {
	info, ok := chains[id]
	return info, ok
}

// Name returns the chain name, or the numeric id when unknown.
func Name(id uint64) string {
	if info, ok := chains[id]; ok {
		return info.Name
	}
	return "chain-" + strconv.FormatUint(id, 10)
}

// NativeSymbol returns the native gas token symbol of a chain, or "" when unknown.
func NativeSymbol(id uint64) string {
	return chains[id].NativeSymbol
}

// IsNative reports whether token is the native gas token of the chain.
func IsNative(id uint64, token model.TokenInfo) bool {
	native := NativeSymbol(id)
	return native != "" && strings.EqualFold(native, token.Symbol)
}

// Forkable reports whether transactions on the chain can be replayed in a sandbox.
// Unknown chains are assumed forkable and left to the sandbox service to reject.
func Forkable(id uint64) bool {
	info, ok := chains[id]
	return !ok || info.Forkable
}

// SyntheticTopUp reports whether ERC-20 balances can be overridden on the chain.
func SyntheticTopUp(id uint64) bool {
	info, ok := chains[id]
	return !ok || info.SyntheticTopUp
}

// NormalizeToken replaces the pseudo-native "eth" with the chain's wrapped ETH
// on chains whose native asset is not ETH.
func NormalizeToken(id uint64, token model.TokenInfo) model.TokenInfo {
	if !token.IsSymbol(PseudoNativeSymbol) {
		return token
	}
	info, ok := chains[id]
	if !ok || strings.EqualFold(info.NativeSymbol, PseudoNativeSymbol) || info.WETH == nil {
		return token
	}
	return *info.WETH
}
