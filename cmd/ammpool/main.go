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
		Use:          "ammpool",
		Short:        "Constant-product pool replay and quoting",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL operation stream against a pool",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("asset-a", "", "first pool asset address")
	replayCmd.Flags().String("asset-b", "", "second pool asset address")
	replayCmd.Flags().String("events-out", "./data/pool_events.jsonl", "output pool events JSONL (empty to disable)")
	replayCmd.Flags().String("state-file", "./data/replay_state.json", "local state file used when --pg-dsn is not set")
	replayCmd.Flags().String("state-name", "replay", "state row name used with --pg-dsn")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN for events and state")
	replayCmd.Flags().Int("batch-size", 500, "events per flush")
	replayCmd.Flags().String("metrics-out", "", "write prometheus metrics to this file when done")
	replayCmd.Flags().Bool("enforce-allowance", false, "require approve operations before deposits and swaps")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against given or on-chain reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("amount-in", "", "exact input amount")
	quoteCmd.Flags().String("amount-out", "", "desired output amount (quotes the required input)")
	quoteCmd.Flags().String("reserve-in", "", "input-side reserve")
	quoteCmd.Flags().String("reserve-out", "", "output-side reserve")
	quoteCmd.Flags().String("rpc", "", "RPC URL for live pair reserves")
	quoteCmd.Flags().String("pair", "", "constant-product pair address")
	quoteCmd.Flags().String("token-in", "", "input token address")
	quoteCmd.Flags().Int("max-retries", 3, "maximum retry attempts per RPC call")
	quoteCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
