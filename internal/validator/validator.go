package validator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bridgeScope/internal/chain"
	"bridgeScope/internal/erc20"
	"bridgeScope/internal/metrics"
	"bridgeScope/internal/model"
	"bridgeScope/internal/price"
	"bridgeScope/internal/retry"
	"bridgeScope/internal/sandbox"
)

// Sandbox is the chain surface a quote is replayed against.
type Sandbox interface {
	erc20.ContractCaller
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	AddBalance(ctx context.Context, account common.Address, amount *big.Int) error
	SetERC20Balance(ctx context.Context, token, account common.Address, amount *big.Int) error
	SendTransaction(ctx context.Context, from common.Address, tx model.Transaction) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer connects to a sandbox rpc endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Sandbox, error)

// ChainDialer dials sandboxes with the go-ethereum backed chain client.
func ChainDialer(receiptPoll, receiptTimeout time.Duration) Dialer {
	return func(ctx context.Context, rpcURL string) (Sandbox, error) {
		client, err := chain.NewClient(ctx, rpcURL)
		if err != nil {
			return nil, err
		}
		client.SetReceiptPolling(receiptPoll, receiptTimeout)
		return client, nil
	}
}

// Config tunes replay and the balance deviation guard.
type Config struct {
	// DeviationThreshold is the largest accepted relative gap between the
	// requested and the consumed input amount.
	DeviationThreshold decimal.Decimal
	ReplayAttempts     int
	ReplayBackoff      time.Duration
	// FundingAmount is the native balance, in wei, credited before replay.
	FundingAmount *big.Int
}

func DefaultConfig() Config {
	return Config{
		DeviationThreshold: decimal.NewFromFloat(0.05),
		ReplayAttempts:     4,
		ReplayBackoff:      time.Second,
		FundingAmount:      new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)),
	}
}

// Input is one quote to prove.
type Input struct {
	Quote         *model.Quote
	SourceChainID uint64
	DestChainID   uint64
	SourceToken   model.TokenInfo
	DestToken     model.TokenInfo
	AmountIn      *big.Int
	Account       common.Address
	GasPrice      *big.Int
	// Session is optional; without it a fresh sandbox is forked.
	Session *sandbox.Session
}

// Outcome is the result of a validation that did not hit a fatal error.
// Route is nil when the quote could not be proven.
type Outcome struct {
	Route  *model.BridgeRoute
	Reason string
}

func (o Outcome) OK() bool {
	return o.Route != nil
}

func failed(format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...)}
}

// Validator proves quotes by replaying them on forked chain state.
type Validator struct {
	cfg     Config
	service sandbox.Service
	dial    Dialer
	prices  price.Oracle
	logger  *zap.Logger
}

func New(cfg Config, service sandbox.Service, dial Dialer, prices price.Oracle, logger *zap.Logger) *Validator {
	defaults := DefaultConfig()
	if cfg.DeviationThreshold.Sign() <= 0 {
		cfg.DeviationThreshold = defaults.DeviationThreshold
	}
	if cfg.ReplayAttempts <= 0 {
		cfg.ReplayAttempts = defaults.ReplayAttempts
	}
	if cfg.ReplayBackoff <= 0 {
		cfg.ReplayBackoff = defaults.ReplayBackoff
	}
	if cfg.FundingAmount == nil || cfg.FundingAmount.Sign() <= 0 {
		cfg.FundingAmount = defaults.FundingAmount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, service: service, dial: dial, prices: prices, logger: logger}
}

// Validate replays in.Quote and scores it. Soft failures are reported through
// the Outcome; the returned error is reserved for failures that must abort the
// whole aggregation.
func (v *Validator) Validate(ctx context.Context, in Input) (Outcome, error) {
	start := time.Now()
	outcome, err := v.validate(ctx, in)

	label := metrics.OutcomeRoute
	switch {
	case err != nil:
		label = metrics.OutcomeFatal
	case !outcome.OK():
		label = metrics.OutcomeFailed
	}
	metrics.ValidationSeconds.WithLabelValues(in.Quote.Source, label).Observe(time.Since(start).Seconds())
	return outcome, err
}

func (v *Validator) validate(ctx context.Context, in Input) (Outcome, error) {
	q := in.Quote
	logger := v.logger.With(zap.String("provider", q.Source))

	if !chain.Forkable(in.SourceChainID) {
		logger.Debug("source chain cannot be simulated", zap.String("chain", chain.Name(in.SourceChainID)))
		return Outcome{Route: &model.BridgeRoute{
			Txs:          q.Txs,
			Source:       q.Source,
			AmountIn:     new(big.Int),
			AmountOut:    new(big.Int),
			AmountOutUSD: decimal.Zero,
			SkipApprove:  q.SkipApprove,
		}}, nil
	}
	if len(q.Txs) == 0 {
		return failed("quote has no transactions"), nil
	}
	if q.AmountOut == nil || in.AmountIn == nil {
		return failed("quote is missing amounts"), nil
	}

	handle, err := v.acquire(ctx, in)
	if err != nil {
		return Outcome{}, err
	}
	logger = logger.With(zap.String("sandbox", handle.ID))

	sb, err := v.dial(ctx, handle.RPCEndpoint)
	if err != nil {
		return Outcome{}, fmt.Errorf("dial sandbox %s: %w", handle.ID, err)
	}
	defer sb.Close()

	r := &replay{Validator: v, in: in, sb: sb, logger: logger}
	outcome, err := r.run(ctx)
	if err == nil && !outcome.OK() {
		logger.Info("route validation failed", zap.String("reason", outcome.Reason))
	}
	return outcome, err
}

func (v *Validator) acquire(ctx context.Context, in Input) (model.SandboxHandle, error) {
	if in.Session == nil {
		handle, err := v.service.Create(ctx, in.SourceChainID, nil)
		if err != nil {
			return model.SandboxHandle{}, fmt.Errorf("create sandbox: %w", err)
		}
		return handle, nil
	}

	future, err := in.Session.Claim()
	if err != nil {
		return model.SandboxHandle{}, fmt.Errorf("session %s: %w", in.Session.ID, err)
	}
	handle, err := future.Wait(ctx)
	if err != nil {
		return model.SandboxHandle{}, fmt.Errorf("provision sandbox for session %s: %w", in.Session.ID, err)
	}
	return handle, nil
}

// replay carries the state of one validation against one sandbox.
type replay struct {
	*Validator
	in     Input
	sb     Sandbox
	logger *zap.Logger
}

func (r *replay) native() bool {
	return chain.IsNative(r.in.SourceChainID, r.in.SourceToken)
}

func (r *replay) balance(ctx context.Context) (*big.Int, error) {
	if r.native() {
		return r.sb.NativeBalance(ctx, r.in.Account)
	}
	return erc20.BalanceOf(ctx, r.sb, *r.in.SourceToken.Address, r.in.Account)
}

func (r *replay) run(ctx context.Context) (Outcome, error) {
	in := r.in
	q := in.Quote

	if !r.native() && in.SourceToken.Address == nil {
		return failed("source token %s has no address", in.SourceToken.Symbol), nil
	}
	if err := r.sb.AddBalance(ctx, in.Account, r.cfg.FundingAmount); err != nil {
		return failed("fund account: %v", err), nil
	}

	if !r.native() {
		if outcome, ok := r.prepareToken(ctx); !ok {
			return outcome, nil
		}
	}

	baseline, err := r.balance(ctx)
	if err != nil {
		return failed("read baseline balance: %v", err), nil
	}

	gasPrice := in.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	amountIn := new(big.Int).Set(in.AmountIn)
	totalGas := new(big.Int)
	txs := make([]model.Transaction, 0, len(q.Txs))
	for i, tx := range q.Txs {
		receipt, err := r.send(ctx, tx)
		if err != nil {
			return failed("replay tx %d: %v", i, err), nil
		}

		if i == 0 {
			outcome, ok := r.checkConsumption(ctx, baseline, receipt, gasPrice, amountIn)
			if !ok {
				return outcome, nil
			}
		}

		gas := receipt.GasUsed
		tx.Gas = &gas
		txs = append(txs, tx)
		totalGas.Add(totalGas, new(big.Int).SetUint64(gas))
	}

	usd, err := r.score(ctx, new(big.Int).Mul(totalGas, gasPrice))
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Route: &model.BridgeRoute{
		Txs:          txs,
		Source:       q.Source,
		AmountIn:     amountIn,
		AmountOut:    new(big.Int).Set(q.AmountOut),
		AmountOutUSD: usd,
		SkipApprove:  q.SkipApprove,
	}}, nil
}

// prepareToken tops up the token balance when the chain allows it and approves
// the first transaction's target.
func (r *replay) prepareToken(ctx context.Context) (Outcome, bool) {
	in := r.in
	token := *in.SourceToken.Address

	balance, err := r.balance(ctx)
	if err != nil {
		return failed("read token balance: %v", err), false
	}

	if balance.Cmp(in.AmountIn) < 0 && chain.SyntheticTopUp(in.SourceChainID) {
		target := new(big.Int).Add(balance, in.AmountIn)
		if err := r.sb.SetERC20Balance(ctx, token, in.Account, target); err != nil {
			return failed("top up %s: %v", in.SourceToken.Symbol, err), false
		}
	}

	data, err := erc20.PackApprove(in.Quote.Txs[0].To, erc20.MaxUint256)
	if err != nil {
		return failed("pack approve: %v", err), false
	}
	approve := model.Transaction{To: token, Value: new(big.Int), Data: data}
	hash, err := r.sb.SendTransaction(ctx, in.Account, approve)
	if err != nil {
		return failed("send approve: %v", err), false
	}
	receipt, err := r.sb.WaitReceipt(ctx, hash)
	if err != nil {
		return failed("approve receipt: %v", err), false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failed("approve reverted"), false
	}
	return Outcome{}, true
}

var errReverted = errors.New("transaction reverted")

func (r *replay) send(ctx context.Context, tx model.Transaction) (*types.Receipt, error) {
	cfg := retry.Attempts(r.cfg.ReplayAttempts, r.cfg.ReplayBackoff)
	cfg.OnRetry = func(attempt int, err error) {
		metrics.ReplayRetries.WithLabelValues(r.in.Quote.Source).Inc()
		r.logger.Debug("replay attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	var receipt *types.Receipt
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		hash, err := r.sb.SendTransaction(ctx, r.in.Account, tx)
		if err != nil {
			return err
		}
		rcpt, err := r.sb.WaitReceipt(ctx, hash)
		if err != nil {
			return err
		}
		if rcpt.Status != types.ReceiptStatusSuccessful {
			return fmt.Errorf("%s: %w", hash.Hex(), errReverted)
		}
		receipt = rcpt
		return nil
	})
	return receipt, err
}

// checkConsumption compares the balance drop caused by the first transaction
// with the requested amount and raises amountIn to what was actually spent.
func (r *replay) checkConsumption(ctx context.Context, baseline *big.Int, receipt *types.Receipt, gasPrice, amountIn *big.Int) (Outcome, bool) {
	current, err := r.balance(ctx)
	if err != nil {
		return failed("read balance after replay: %v", err), false
	}

	spent := new(big.Int).Sub(baseline, current)
	consumed := new(big.Int).Set(spent)
	if r.native() {
		gasCost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
		consumed.Sub(consumed, gasCost)
	}

	if amountIn.Sign() > 0 {
		requested := decimal.NewFromBigInt(amountIn, 0)
		deviation := decimal.NewFromBigInt(spent, 0).Sub(requested).Abs().Div(requested)
		if deviation.GreaterThan(r.cfg.DeviationThreshold) {
			r.logger.Info("consumed amount deviates from quote",
				zap.String("requested", amountIn.String()),
				zap.String("consumed", spent.String()),
				zap.String("deviation", deviation.StringFixed(4)),
			)
			return failed("consumed %s deviates %s from requested %s", spent, deviation.StringFixed(4), amountIn), false
		}
	}

	if consumed.Cmp(amountIn) > 0 {
		amountIn.Set(consumed)
	}
	return Outcome{}, true
}

func (r *replay) score(ctx context.Context, gasCost *big.Int) (decimal.Decimal, error) {
	in := r.in
	nativeSymbol := chain.NativeSymbol(in.SourceChainID)

	nativePrice, err := r.prices.Price(ctx, nativeSymbol, in.SourceChainID)
	if err != nil {
		if errors.Is(err, price.ErrPriceUnavailable) {
			return decimal.Zero, fmt.Errorf("gas token price: %w", err)
		}
		return decimal.Zero, fmt.Errorf("gas token price: %w: %v", price.ErrPriceUnavailable, err)
	}
	gasUSD := decimal.NewFromBigInt(gasCost, -18).Mul(nativePrice)

	outPrice, err := r.prices.Price(ctx, in.DestToken.Symbol, in.DestChainID)
	if err != nil {
		r.logger.Warn("destination token price unavailable, scoring route at zero",
			zap.String("token", in.DestToken.Symbol), zap.Error(err))
		return decimal.Zero, nil
	}

	outputUSD := decimal.NewFromBigInt(in.Quote.AmountOut, -int32(in.DestToken.Decimals)).Mul(outPrice)
	usd := outputUSD.Sub(gasUSD).Sub(in.Quote.USDFee)
	if usd.IsNegative() {
		return decimal.Zero, nil
	}
	return usd, nil
}
