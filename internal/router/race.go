package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bridgeScope/internal/metrics"
	"bridgeScope/internal/model"
	"bridgeScope/internal/provider"
	"bridgeScope/internal/validator"
)

type resultKind int

const (
	kindDeclined resultKind = iota
	kindValidationFailed
	kindRoute
	kindFatal
)

// taskResult is the settled state of one provider task.
type taskResult struct {
	provider string
	kind     resultKind
	route    *model.BridgeRoute
	// err is a *ProviderError for declines and failures, or the fatal error.
	err error
}

func (rt *Router) runTask(ctx context.Context, p *plan, named provider.Named) taskResult {
	req := p.req
	logger := p.logger.With(zap.String("provider", named.ID))

	quote, err := named.Provider.Quote(ctx, provider.QuoteRequest{
		SourceChainID:  req.SourceChainID,
		DestChainID:    req.DestChainID,
		Account:        req.Account,
		SourceToken:    req.SourceToken,
		DestToken:      req.DestToken,
		AmountIn:       req.AmountIn,
		TotalProviders: len(p.providers),
	})
	if err != nil {
		logger.Info("provider failed", zap.Error(err))
		metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeDeclined).Inc()
		return taskResult{provider: named.ID, kind: kindDeclined,
			err: &ProviderError{Provider: named.ID, Reason: "quote failed", Err: err}}
	}
	if quote == nil {
		metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeDeclined).Inc()
		return taskResult{provider: named.ID, kind: kindDeclined,
			err: &ProviderError{Provider: named.ID, Reason: "no quote for this request"}}
	}
	if quote.Source == "" {
		quote.Source = named.ID
	}
	if p.ignored(quote.Source) {
		logger.Debug("ignoring quote", zap.String("source", quote.Source))
		metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeDeclined).Inc()
		return taskResult{provider: named.ID, kind: kindDeclined,
			err: &ProviderError{Provider: named.ID, Reason: fmt.Sprintf("source %s is ignored", quote.Source)}}
	}

	outcome, err := rt.validator.Validate(ctx, validator.Input{
		Quote:         quote,
		SourceChainID: req.SourceChainID,
		DestChainID:   req.DestChainID,
		SourceToken:   req.SourceToken,
		DestToken:     req.DestToken,
		AmountIn:      req.AmountIn,
		Account:       req.Account,
		GasPrice:      req.GasPrice,
		Session:       p.session,
	})
	if err != nil {
		logger.Error("validation aborted", zap.Error(err))
		metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeFatal).Inc()
		return taskResult{provider: named.ID, kind: kindFatal, err: err}
	}
	if !outcome.OK() {
		metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeFailed).Inc()
		return taskResult{provider: named.ID, kind: kindValidationFailed,
			err: &ProviderError{Provider: named.ID, Reason: "validation failed: " + outcome.Reason}}
	}

	metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeRoute).Inc()
	logger.Info("route proven",
		zap.String("amount_in", outcome.Route.AmountIn.String()),
		zap.String("amount_out", outcome.Route.AmountOut.String()),
		zap.String("amount_out_usd", outcome.Route.AmountOutUSD.String()),
	)
	return taskResult{provider: named.ID, kind: kindRoute, route: outcome.Route}
}

// race collects routes until every task settles, the budget runs out, or the
// grace window after the latest accepted route closes.
func (rt *Router) race(ctx context.Context, p *plan) ([]model.BridgeRoute, error) {
	results := make(chan taskResult, len(p.providers))
	for _, named := range p.providers {
		named := named
		go func() {
			results <- rt.runTask(ctx, p, named)
		}()
	}

	deadline := time.NewTimer(p.budget)
	defer deadline.Stop()
	grace := time.NewTimer(rt.cfg.GraceWindow)
	grace.Stop()
	defer grace.Stop()
	var graceC <-chan time.Time

	settled := make(map[string]bool, len(p.providers))
	var routes []model.BridgeRoute
	for pending := len(p.providers); pending > 0; {
		select {
		case res := <-results:
			pending--
			settled[res.provider] = true
			switch res.kind {
			case kindFatal:
				return nil, res.err
			case kindRoute:
				routes = append(routes, *res.route)
				grace.Reset(rt.cfg.GraceWindow)
				graceC = grace.C
			default:
				if p.pinned() {
					return nil, res.err
				}
			}

		case <-deadline.C:
			rt.recordTimeouts(p, settled)
			if len(routes) == 0 {
				if p.pinned() {
					return nil, p.timeoutError(ErrNoRoutes)
				}
				return nil, fmt.Errorf("after %s: %w", p.budget, ErrNoRoutes)
			}
			p.logger.Info("budget exhausted, returning collected routes", zap.Int("routes", len(routes)))
			return routes, nil

		case <-graceC:
			p.logger.Debug("grace window closed", zap.Int("pending", pending))
			return routes, nil

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	return routes, nil
}

// execute gives every task the whole budget and keeps the routes that settled in time.
func (rt *Router) execute(ctx context.Context, p *plan) ([]model.BridgeRoute, error) {
	var (
		mu      sync.Mutex
		routes  []model.BridgeRoute
		fatal   error
		settled = make(map[string]bool, len(p.providers))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, named := range p.providers {
		named := named
		g.Go(func() error {
			res := rt.runTask(ctx, p, named)

			mu.Lock()
			defer mu.Unlock()
			settled[res.provider] = true
			switch res.kind {
			case kindRoute:
				routes = append(routes, *res.route)
				return nil
			case kindFatal:
			default:
				if !p.pinned() {
					return nil
				}
			}
			if fatal == nil {
				fatal = res.err
			}
			return res.err
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	deadline := time.NewTimer(p.budget)
	defer deadline.Stop()

	timedOut := false
	select {
	case <-done:
	case <-gctx.Done():
	case <-deadline.C:
		timedOut = true
	}

	mu.Lock()
	defer mu.Unlock()
	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timedOut {
		rt.recordTimeouts(p, settled)
		if p.pinned() && len(routes) == 0 {
			return nil, p.timeoutError(nil)
		}
	}
	return append([]model.BridgeRoute(nil), routes...), nil
}

func (p *plan) timeoutError(err error) error {
	return &ProviderError{Provider: p.providers[0].ID, Reason: fmt.Sprintf("timed out after %s", p.budget), Err: err}
}

func (rt *Router) recordTimeouts(p *plan, settled map[string]bool) {
	for _, named := range p.providers {
		if settled[named.ID] {
			continue
		}
		metrics.QuotesTotal.WithLabelValues(named.ID, metrics.OutcomeTimeout).Inc()
		p.logger.Info("provider timed out", zap.String("provider", named.ID))
	}
}
