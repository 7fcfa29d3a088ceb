package router

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bridgeScope/internal/chain"
	"bridgeScope/internal/metrics"
	"bridgeScope/internal/model"
	"bridgeScope/internal/provider"
	"bridgeScope/internal/sandbox"
	"bridgeScope/internal/validator"
)

// Config holds the time budget and ranking knobs.
type Config struct {
	MaxTime time.Duration
	// PinnedMaxTime bounds a call that queries a single provider.
	PinnedMaxTime time.Duration
	// GraceWindow is how long simulation mode keeps waiting after a route is accepted.
	GraceWindow       time.Duration
	PreferredProvider string
	PreferredMargin   decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		MaxTime:           23 * time.Second,
		PinnedMaxTime:     24 * time.Hour,
		GraceWindow:       500 * time.Millisecond,
		PreferredProvider: provider.Reservoir,
		PreferredMargin:   decimal.NewFromFloat(0.05),
	}
}

// Request describes one bridge to price.
type Request struct {
	SourceChainID uint64
	DestChainID   uint64
	Account       common.Address
	SourceToken   model.TokenInfo
	DestToken     model.TokenInfo
	AmountIn      *big.Int
	GasPrice      *big.Int
	// Ignore lists provider names whose quotes are discarded.
	Ignore []string
	// PinnedProvider restricts the call to one provider id or alias.
	PinnedProvider string
	// OriginRPC is the rpc endpoint of an existing sandbox to branch from.
	OriginRPC   string
	IsAllAmount bool
	IsExecution bool
}

// RouteValidator proves a single quote.
type RouteValidator interface {
	Validate(ctx context.Context, in validator.Input) (validator.Outcome, error)
}

// Router selects the best proven bridge route across providers.
type Router struct {
	cfg       Config
	registry  *provider.Registry
	validator RouteValidator
	sandboxes sandbox.Service
	logger    *zap.Logger
}

func New(cfg Config, registry *provider.Registry, v RouteValidator, sandboxes sandbox.Service, logger *zap.Logger) *Router {
	defaults := DefaultConfig()
	if cfg.MaxTime <= 0 {
		cfg.MaxTime = defaults.MaxTime
	}
	if cfg.PinnedMaxTime <= 0 {
		cfg.PinnedMaxTime = defaults.PinnedMaxTime
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaults.GraceWindow
	}
	if cfg.PreferredMargin.IsNegative() {
		cfg.PreferredMargin = defaults.PreferredMargin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, registry: registry, validator: v, sandboxes: sandboxes, logger: logger}
}

// plan is the resolved form of a Request.
type plan struct {
	req       Request
	providers []provider.Named
	ignore    map[string]bool
	session   *sandbox.Session
	budget    time.Duration
	logger    *zap.Logger
}

func (p *plan) pinned() bool {
	return len(p.providers) == 1
}

func (p *plan) ignored(source string) bool {
	if id, ok := provider.Canonical(source); ok {
		source = id
	}
	return p.ignore[strings.ToLower(source)]
}

// GetBestBridgeRoutes queries providers, proves their quotes and returns the
// proven routes best first. In simulation mode the call returns as soon as the
// field settles; in execution mode every provider gets the full budget.
func (rt *Router) GetBestBridgeRoutes(ctx context.Context, req Request) ([]model.BridgeRoute, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	p, err := rt.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(p.providers) == 0 {
		return nil, ErrNoRoutes
	}

	mode := "simulation"
	if req.IsExecution {
		mode = "execution"
	}
	start := time.Now()
	defer func() {
		metrics.AggregationSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	p.logger.Info("aggregating bridge routes",
		zap.String("mode", mode),
		zap.Int("providers", len(p.providers)),
		zap.Duration("budget", p.budget),
	)

	var routes []model.BridgeRoute
	if req.IsExecution {
		routes, err = rt.execute(ctx, p)
	} else {
		routes, err = rt.race(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	SortRoutes(routes, rt.cfg.PreferredProvider, rt.cfg.PreferredMargin)
	p.logger.Info("bridge routes ready", zap.Int("routes", len(routes)), zap.Duration("elapsed", time.Since(start)))
	return routes, nil
}

func (rt *Router) prepare(ctx context.Context, req Request) (*plan, error) {
	req.SourceToken = chain.NormalizeToken(req.SourceChainID, req.SourceToken)
	req.DestToken = chain.NormalizeToken(req.DestChainID, req.DestToken)

	providers, err := rt.registry.Select(req.PinnedProvider, req.IsAllAmount)
	if err != nil {
		return nil, err
	}

	ignore := make(map[string]bool, len(req.Ignore))
	for _, name := range req.Ignore {
		name = strings.ToLower(strings.TrimSpace(name))
		if id, ok := provider.Canonical(name); ok {
			name = id
		}
		ignore[name] = true
	}

	p := &plan{
		req:       req,
		providers: providers,
		ignore:    ignore,
		budget:    rt.cfg.MaxTime,
		logger:    rt.logger.With(zap.String("account", req.Account.Hex())),
	}
	if p.pinned() {
		p.budget = rt.cfg.PinnedMaxTime
	}

	if req.OriginRPC != "" && rt.sandboxes != nil && len(providers) > 0 {
		if origin, ok := rt.sandboxes.Resolve(req.OriginRPC); ok {
			p.session = sandbox.NewSession(ctx, rt.sandboxes, origin, len(providers), rt.logger)
			p.logger = p.logger.With(zap.String("session", p.session.ID))
		} else {
			p.logger.Warn("origin rpc is not a known sandbox, forking fresh", zap.String("origin_rpc", req.OriginRPC))
		}
	}
	return p, nil
}
