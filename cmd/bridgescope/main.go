package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "bridgescope",
		Short:        "Proven best-route bridge aggregation",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote, simulate and rank bridge routes",
		RunE:  runQuote,
	}

	quoteCmd.Flags().Uint64("src-chain", 0, "source chain id")
	quoteCmd.Flags().Uint64("dst-chain", 0, "destination chain id")
	quoteCmd.Flags().String("account", "", "account that sends the bridge transactions")
	quoteCmd.Flags().String("src-token", "", "source token as symbol:address:decimals (address empty for native)")
	quoteCmd.Flags().String("dst-token", "", "destination token as symbol:address:decimals")
	quoteCmd.Flags().String("amount", "", "amount in, in base units (decimal or 0x hex)")
	quoteCmd.Flags().String("gas-price", "0", "gas price in wei used for scoring")
	quoteCmd.Flags().StringSlice("ignore", nil, "provider sources to ignore (comma-separated)")
	quoteCmd.Flags().String("provider", "", "pin a single provider id or alias")
	quoteCmd.Flags().String("origin-rpc", "", "admin rpc of an existing sandbox to branch from")
	quoteCmd.Flags().String("origin-id", "", "id of the sandbox behind --origin-rpc")
	quoteCmd.Flags().Bool("all-amount", false, "the whole balance is bridged")
	quoteCmd.Flags().Bool("execution", false, "wait for every provider instead of racing")
	quoteCmd.Flags().Duration("max-time", 23*time.Second, "aggregation time budget")
	quoteCmd.Flags().Duration("grace-window", 500*time.Millisecond, "wait after the latest accepted route")
	quoteCmd.Flags().StringSlice("prices", nil, "static USD prices (comma-separated symbol=price)")
	quoteCmd.Flags().String("pg-dsn", "", "Postgres DSN for the token_prices table")
	quoteCmd.Flags().String("redis-url", "", "Redis URL for the shared price cache")
	quoteCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	sandboxCmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Manage simulation sandboxes",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Fork a chain into a new sandbox and print its handle",
		RunE:  runSandboxCreate,
	}

	createCmd.Flags().Uint64("chain", 0, "chain id to fork")
	createCmd.Flags().Uint64("block", 0, "block to fork at, 0 means latest")
	createCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	sandboxCmd.AddCommand(createCmd)
	root.AddCommand(sandboxCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
