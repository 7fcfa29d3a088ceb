package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bridgeScope/internal/config"
)

func runSandboxCreate(cmd *cobra.Command, _ []string) error {
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
	chainID, _ := cmd.Flags().GetUint64("chain")
	if chainID == 0 {
		return fmt.Errorf("chain is required")
	}
	var block *uint64
	if b, _ := cmd.Flags().GetUint64("block"); b > 0 {
		block = &b
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := newTenderly(cfg, logger).Create(ctx, chainID, block)
	if err != nil {
		return err
	}
	logger.Info("sandbox created", zap.String("sandbox", handle.ID), zap.Uint64("chain_id", chainID))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(handle)
}
