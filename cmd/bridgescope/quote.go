package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"bridgeScope/internal/config"
	"bridgeScope/internal/metrics"
	"bridgeScope/internal/model"
	"bridgeScope/internal/price"
	"bridgeScope/internal/provider"
	"bridgeScope/internal/router"
	"bridgeScope/internal/sandbox"
	"bridgeScope/internal/validator"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}
	req, err := parseRequest(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	tenderly := newTenderly(cfg, logger)
	if originID, _ := cmd.Flags().GetString("origin-id"); originID != "" && req.OriginRPC != "" {
		tenderly.Track(model.SandboxHandle{ID: originID, RPCEndpoint: req.OriginRPC})
	}

	oracle, closeOracle, err := newOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	v := validator.New(validator.Config{
		DeviationThreshold: cfg.DeviationThreshold,
		ReplayAttempts:     cfg.ReplayAttempts,
		ReplayBackoff:      cfg.ReplayBackoff,
		FundingAmount:      cfg.FundingAmount,
	}, tenderly, validator.ChainDialer(cfg.ReceiptPoll, cfg.ReceiptTimeout), oracle, logger)

	rt := router.New(router.Config{
		MaxTime:           cfg.MaxTime,
		GraceWindow:       cfg.GraceWindow,
		PreferredProvider: cfg.PreferredProvider,
		PreferredMargin:   cfg.PreferredMargin,
	}, registry, v, tenderly, logger)

	logger.Info("quote start",
		zap.Uint64("src_chain", req.SourceChainID),
		zap.Uint64("dst_chain", req.DestChainID),
		zap.String("src_token", req.SourceToken.Symbol),
		zap.String("dst_token", req.DestToken.Symbol),
		zap.String("amount", req.AmountIn.String()),
		zap.String("provider", req.PinnedProvider),
		zap.Bool("execution", req.IsExecution),
	)

	routes, err := rt.GetBestBridgeRoutes(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(routes)
}

func newTenderly(cfg config.Config, logger *zap.Logger) *sandbox.Tenderly {
	return sandbox.NewTenderly(sandbox.TenderlyConfig{
		APIBase:   cfg.TenderlyAPI,
		User:      cfg.TenderlyUser,
		Project:   cfg.TenderlyProject,
		AccessKey: cfg.TenderlyAccessKey,
	}, logger)
}

func newRegistry(cfg config.Config, logger *zap.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	adapters := map[string]provider.QuoteProvider{
		provider.Debridge:  provider.NewDebridge(provider.DebridgeConfig{BaseURL: cfg.DebridgeAPI}, logger),
		provider.LiFi:      provider.NewLiFi(provider.LiFiConfig{BaseURL: cfg.LiFiAPI, APIKey: cfg.LiFiAPIKey}, logger),
		provider.Reservoir: provider.NewRelay(provider.RelayConfig{BaseURL: cfg.RelayAPI}, logger),
	}
	for id, adapter := range adapters {
		if err := registry.Register(id, adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// newOracle layers the static table over the Postgres price store, cached in
// redis when configured and in memory otherwise.
func newOracle(ctx context.Context, cfg config.Config, logger *zap.Logger) (price.Oracle, func(), error) {
	oracles := price.Chain{price.NewStatic(cfg.Prices)}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.PGDSN != "" {
		store, err := price.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, store.Close)

		var cached price.Oracle = price.NewMemoryCache(store, cfg.PriceCacheTTL)
		if cfg.RedisURL != "" {
			rdb, err := price.DialRedis(ctx, cfg.RedisURL)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() { _ = rdb.Close() })
			cached = price.NewRedisCache(rdb, store, cfg.PriceCacheTTL, logger)
		}
		oracles = append(oracles, cached)
	}
	return oracles, closeAll, nil
}

func parseRequest(flags *pflag.FlagSet) (router.Request, error) {
	var req router.Request
	var err error

	req.SourceChainID, _ = flags.GetUint64("src-chain")
	req.DestChainID, _ = flags.GetUint64("dst-chain")
	if req.SourceChainID == 0 || req.DestChainID == 0 {
		return req, fmt.Errorf("src-chain and dst-chain are required")
	}

	account, _ := flags.GetString("account")
	if !common.IsHexAddress(account) {
		return req, fmt.Errorf("invalid account %q", account)
	}
	req.Account = common.HexToAddress(account)

	src, _ := flags.GetString("src-token")
	if req.SourceToken, err = parseToken(src); err != nil {
		return req, fmt.Errorf("src-token: %w", err)
	}
	dst, _ := flags.GetString("dst-token")
	if req.DestToken, err = parseToken(dst); err != nil {
		return req, fmt.Errorf("dst-token: %w", err)
	}

	amount, _ := flags.GetString("amount")
	if req.AmountIn, err = model.ParseAmount(amount); err != nil {
		return req, fmt.Errorf("amount: %w", err)
	}
	if req.AmountIn.Sign() <= 0 {
		return req, fmt.Errorf("amount must be positive")
	}
	gasPrice, _ := flags.GetString("gas-price")
	if req.GasPrice, err = model.ParseAmount(gasPrice); err != nil {
		return req, fmt.Errorf("gas-price: %w", err)
	}

	req.Ignore, _ = flags.GetStringSlice("ignore")
	req.PinnedProvider, _ = flags.GetString("provider")
	req.OriginRPC, _ = flags.GetString("origin-rpc")
	req.IsAllAmount, _ = flags.GetBool("all-amount")
	req.IsExecution, _ = flags.GetBool("execution")
	return req, nil
}

// parseToken reads symbol:address:decimals. The address may be empty.
func parseToken(input string) (model.TokenInfo, error) {
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) != 3 || parts[0] == "" {
		return model.TokenInfo{}, fmt.Errorf("expected symbol:address:decimals, got %q", input)
	}

	token := model.TokenInfo{Symbol: strings.ToLower(parts[0])}
	if parts[1] != "" {
		if !common.IsHexAddress(parts[1]) {
			return model.TokenInfo{}, fmt.Errorf("invalid token address %q", parts[1])
		}
		addr := common.HexToAddress(parts[1])
		token.Address = &addr
	}
	decimals, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("invalid decimals %q: %w", parts[2], err)
	}
	token.Decimals = uint8(decimals)
	return token, nil
}
