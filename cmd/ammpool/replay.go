package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammPool/internal/config"
	"ammPool/internal/metrics"
	"ammPool/internal/replay"
	"ammPool/internal/storage"
	"ammPool/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
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
	assetA, err := replay.ParseAddress(cfg.AssetA, "asset-a")
	if err != nil {
		return err
	}
	assetB, err := replay.ParseAddress(cfg.AssetB, "asset-b")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks storage.Fanout
	if cfg.EventsOut != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.EventsOut))
	}

	var stateStore replay.StateStore = &replay.FileStateStore{Path: cfg.StateFile}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
		stateStore = &replay.DBStateStore{Store: store, Name: cfg.StateName}
	}

	recorder, err := metrics.NewRecorder(nil)
	if err != nil {
		return err
	}

	runner := replay.NewRunner(replay.Config{
		AssetA:           assetA,
		AssetB:           assetB,
		BatchSize:        cfg.BatchSize,
		EnforceAllowance: cfg.EnforceAllowance,
		StateStore:       stateStore,
	}, sinks, recorder, logger)

	logger.Info("replay start",
		zap.String("input", cfg.Input),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
		zap.String("events_out", cfg.EventsOut),
		zap.String("state_file", cfg.StateFile),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("enforce_allowance", cfg.EnforceAllowance),
	)

	if _, err := runner.Run(ctx, cfg.Input); err != nil {
		return err
	}

	if pool := runner.Pool(); pool != nil {
		state := pool.State()
		logger.Info("final pool state",
			zap.Stringer("reserve_a", state.ReserveA),
			zap.Stringer("reserve_b", state.ReserveB),
			zap.Stringer("total_shares", state.TotalShares),
		)
	}

	return recorder.WriteTextfile(cfg.MetricsOut)
}
