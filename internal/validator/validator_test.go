package validator

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"bridgeScope/internal/chain"
	"bridgeScope/internal/model"
	"bridgeScope/internal/price"
	"bridgeScope/internal/sandbox"
)

var (
	account    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdcAddr   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	bridgeAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	approveSel = []byte{0x09, 0x5e, 0xa7, 0xb3}
	gasPrice   = big.NewInt(1_000_000_000)
)

// step scripts the effect of one replayed bridge transaction.
type step struct {
	err      error
	reverted bool
	spend    *big.Int
	gasUsed  uint64
}

type fakeSandbox struct {
	mu        sync.Mutex
	token     common.Address
	native    *big.Int
	tokenBal  *big.Int
	steps     []step
	receipts  map[common.Hash]*types.Receipt
	sends     int
	approvals int
	topUps    int
	funded    bool
	closed    bool
}

func newFakeSandbox(steps ...step) *fakeSandbox {
	return &fakeSandbox{
		token:    usdcAddr,
		native:   new(big.Int),
		tokenBal: new(big.Int),
		steps:    steps,
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeSandbox) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return common.LeftPadBytes(f.tokenBal.Bytes(), 32), nil
}

func (f *fakeSandbox) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.native), nil
}

func (f *fakeSandbox) AddBalance(_ context.Context, _ common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funded = true
	f.native.Add(f.native, amount)
	return nil
}

func (f *fakeSandbox) SetERC20Balance(_ context.Context, _, _ common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topUps++
	f.tokenBal = new(big.Int).Set(amount)
	return nil
}

func (f *fakeSandbox) SendTransaction(_ context.Context, _ common.Address, tx model.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash := common.BigToHash(big.NewInt(int64(len(f.receipts) + 1)))
	if tx.To == f.token && bytes.HasPrefix(tx.Data, approveSel) {
		f.approvals++
		f.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 46_000}
		return hash, nil
	}

	f.sends++
	if len(f.steps) == 0 {
		return common.Hash{}, errors.New("no scripted step")
	}
	s := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	if s.err != nil {
		return common.Hash{}, s.err
	}

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: s.gasUsed}
	f.native.Sub(f.native, new(big.Int).Mul(new(big.Int).SetUint64(s.gasUsed), gasPrice))
	if s.reverted {
		receipt.Status = types.ReceiptStatusFailed
	} else if s.spend != nil {
		if tx.ValueOrZero().Sign() > 0 {
			f.native.Sub(f.native, s.spend)
		} else {
			f.tokenBal.Sub(f.tokenBal, s.spend)
		}
	}
	f.receipts[hash] = receipt
	return hash, nil
}

func (f *fakeSandbox) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeSandbox) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type fakeService struct {
	mu      sync.Mutex
	creates int
	err     error
}

func (s *fakeService) Create(context.Context, uint64, *uint64) (model.SandboxHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.err != nil {
		return model.SandboxHandle{}, s.err
	}
	return model.SandboxHandle{ID: "vnet", RPCEndpoint: "http://vnet"}, nil
}

func (s *fakeService) Clone(_ context.Context, originID string) (model.SandboxHandle, error) {
	return model.SandboxHandle{ID: originID + "-clone", RPCEndpoint: "http://clone"}, nil
}

func (s *fakeService) Resolve(string) (model.SandboxHandle, bool) {
	return model.SandboxHandle{}, false
}

func testPrices() price.Oracle {
	return price.NewStatic(map[string]decimal.Decimal{
		"eth":  decimal.NewFromInt(3000),
		"usdc": decimal.NewFromInt(1),
	})
}

func newTestValidator(sb *fakeSandbox, svc *fakeService, prices price.Oracle) *Validator {
	cfg := DefaultConfig()
	cfg.ReplayBackoff = time.Millisecond
	dial := func(context.Context, string) (Sandbox, error) { return sb, nil }
	return New(cfg, svc, dial, prices, nil)
}

func usdcInput(amountOut int64) Input {
	return Input{
		Quote: &model.Quote{
			AmountOut: big.NewInt(amountOut),
			Txs:       []model.Transaction{{To: bridgeAddr, Value: new(big.Int), Data: []byte{0x01}}},
			Source:    "lifi",
			USDFee:    decimal.RequireFromString("0.1"),
		},
		SourceChainID: chain.Arbitrum,
		DestChainID:   chain.Optimism,
		SourceToken:   model.TokenInfo{Symbol: "usdc", Address: &usdcAddr, Decimals: 6},
		DestToken:     model.TokenInfo{Symbol: "usdc", Decimals: 6},
		AmountIn:      big.NewInt(1_000_000),
		Account:       account,
		GasPrice:      gasPrice,
	}
}

func TestValidateERC20WithinDeviation(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_040_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(5_000_000)
	svc := &fakeService{}
	v := newTestValidator(sb, svc, testPrices())

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("expected route, got failure %q", outcome.Reason)
	}
	route := outcome.Route

	if route.AmountIn.Int64() != 1_040_000 {
		t.Fatalf("proven amount in should be the consumed amount, got %s", route.AmountIn)
	}
	// 0.99 USD out minus 0.3 USD gas minus 0.1 USD fee.
	if !route.AmountOutUSD.Equal(decimal.RequireFromString("0.59")) {
		t.Fatalf("amount out usd mismatch: %s", route.AmountOutUSD)
	}
	if route.Txs[0].Gas == nil || *route.Txs[0].Gas != 100_000 {
		t.Fatalf("replayed tx should carry measured gas: %+v", route.Txs[0])
	}
	if sb.approvals != 1 || sb.topUps != 0 || !sb.funded || !sb.closed {
		t.Fatalf("unexpected sandbox usage: %+v", sb)
	}
	if svc.creates != 1 {
		t.Fatalf("expected one fresh sandbox, got %d", svc.creates)
	}
}

func TestValidateDeviationTooLarge(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_080_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(5_000_000)
	v := newTestValidator(sb, &fakeService{}, testPrices())

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if outcome.OK() {
		t.Fatalf("expected deviation failure, got route %+v", outcome.Route)
	}
}

func TestValidateRequestedAmountIsFloor(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(980_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(5_000_000)
	v := newTestValidator(sb, &fakeService{}, testPrices())

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil || !outcome.OK() {
		t.Fatalf("expected route: %+v %v", outcome, err)
	}
	if outcome.Route.AmountIn.Int64() != 1_000_000 {
		t.Fatalf("amount in should not drop below request: %s", outcome.Route.AmountIn)
	}
}

func TestValidateTopsUpTokenBalance(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_000_000), gasUsed: 100_000})
	v := newTestValidator(sb, &fakeService{}, testPrices())

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil || !outcome.OK() {
		t.Fatalf("expected route: %+v %v", outcome, err)
	}
	if sb.topUps != 1 {
		t.Fatalf("expected synthetic top up, got %d", sb.topUps)
	}
}

func TestValidateSkipsTopUpOnBlast(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_000_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(10)
	v := newTestValidator(sb, &fakeService{}, testPrices())

	in := usdcInput(990_000)
	in.SourceChainID = chain.Blast
	if _, err := v.Validate(context.Background(), in); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sb.topUps != 0 {
		t.Fatalf("blast balances must not be overridden")
	}
}

func TestValidateRetriesThenFails(t *testing.T) {
	sb := newFakeSandbox(step{err: errors.New("nonce too low")})
	sb.tokenBal = big.NewInt(5_000_000)
	v := newTestValidator(sb, &fakeService{}, testPrices())

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil {
		t.Fatalf("retry exhaustion is not fatal: %v", err)
	}
	if outcome.OK() {
		t.Fatalf("expected failure after retries")
	}
	if sb.sends != 4 {
		t.Fatalf("expected 4 attempts, got %d", sb.sends)
	}
}

func TestValidateRetriesRevertedReceipt(t *testing.T) {
	sb := newFakeSandbox(
		step{reverted: true, gasUsed: 30_000},
		step{spend: big.NewInt(1_000_000), gasUsed: 100_000},
	)
	sb.tokenBal = big.NewInt(5_000_000)
	v := newTestValidator(sb, &fakeService{}, testPrices())

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil || !outcome.OK() {
		t.Fatalf("expected route after retry: %+v %v", outcome, err)
	}
	if sb.sends != 2 {
		t.Fatalf("expected 2 sends, got %d", sb.sends)
	}
}

func TestValidateNativeSourceExcludesGas(t *testing.T) {
	oneEth := big.NewInt(1_000_000_000_000_000_000)
	sb := newFakeSandbox(step{spend: oneEth, gasUsed: 21_000})
	svc := &fakeService{}
	v := newTestValidator(sb, svc, testPrices())

	in := usdcInput(2_900_000_000)
	in.SourceToken = model.TokenInfo{Symbol: "eth", Decimals: 18}
	in.AmountIn = oneEth
	in.Quote.Txs[0].Value = oneEth
	in.Quote.USDFee = decimal.Zero

	outcome, err := v.Validate(context.Background(), in)
	if err != nil || !outcome.OK() {
		t.Fatalf("expected route: %+v %v", outcome, err)
	}
	if outcome.Route.AmountIn.Cmp(oneEth) != 0 {
		t.Fatalf("gas must not count as consumed input: %s", outcome.Route.AmountIn)
	}
	if sb.approvals != 0 {
		t.Fatalf("native source must not approve")
	}
	// 2900 USD out minus 21000 gwei of gas at 3000 USD.
	if !outcome.Route.AmountOutUSD.Equal(decimal.RequireFromString("2899.937")) {
		t.Fatalf("amount out usd mismatch: %s", outcome.Route.AmountOutUSD)
	}
}

func TestValidateExemptChain(t *testing.T) {
	svc := &fakeService{}
	v := newTestValidator(newFakeSandbox(), svc, testPrices())

	in := usdcInput(990_000)
	in.SourceChainID = chain.ZkSync
	in.Quote.SkipApprove = true

	outcome, err := v.Validate(context.Background(), in)
	if err != nil || !outcome.OK() {
		t.Fatalf("expected zero route: %+v %v", outcome, err)
	}
	route := outcome.Route
	if route.AmountIn.Sign() != 0 || route.AmountOut.Sign() != 0 || !route.AmountOutUSD.IsZero() || !route.SkipApprove {
		t.Fatalf("unexpected exempt route: %+v", route)
	}
	if svc.creates != 0 {
		t.Fatalf("exempt chain must not touch the sandbox service")
	}
}

func TestValidateMissingGasPriceIsFatal(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_000_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(5_000_000)
	prices := price.NewStatic(map[string]decimal.Decimal{"usdc": decimal.NewFromInt(1)})
	v := newTestValidator(sb, &fakeService{}, prices)

	if _, err := v.Validate(context.Background(), usdcInput(990_000)); !errors.Is(err, price.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestValidateMissingDestinationPriceScoresZero(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_000_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(5_000_000)
	prices := price.NewStatic(map[string]decimal.Decimal{"eth": decimal.NewFromInt(3000)})
	v := newTestValidator(sb, &fakeService{}, prices)

	outcome, err := v.Validate(context.Background(), usdcInput(990_000))
	if err != nil || !outcome.OK() {
		t.Fatalf("expected route: %+v %v", outcome, err)
	}
	if !outcome.Route.AmountOutUSD.IsZero() {
		t.Fatalf("expected zero usd, got %s", outcome.Route.AmountOutUSD)
	}
}

func TestValidateSessionExhaustedIsFatal(t *testing.T) {
	sb := newFakeSandbox(step{spend: big.NewInt(1_000_000), gasUsed: 100_000})
	sb.tokenBal = big.NewInt(5_000_000)
	svc := &fakeService{}
	v := newTestValidator(sb, svc, testPrices())

	session := sandbox.NewSession(context.Background(), svc, model.SandboxHandle{ID: "origin"}, 1, nil)
	in := usdcInput(990_000)
	in.Session = session

	if _, err := v.Validate(context.Background(), in); err != nil {
		t.Fatalf("first validation: %v", err)
	}
	if _, err := v.Validate(context.Background(), in); !errors.Is(err, sandbox.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if svc.creates != 0 {
		t.Fatalf("session validations must not fork fresh sandboxes")
	}
}

func TestValidateCreateFailureIsFatal(t *testing.T) {
	svc := &fakeService{err: errors.New("quota exceeded")}
	v := newTestValidator(newFakeSandbox(), svc, testPrices())

	if _, err := v.Validate(context.Background(), usdcInput(990_000)); err == nil {
		t.Fatalf("expected fatal create error")
	}
}
