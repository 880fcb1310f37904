package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/chain"
	"ammPool/internal/config"
	"ammPool/internal/dex"
	"ammPool/internal/model"
	"ammPool/internal/replay"
)

type quoteOutput struct {
	Pair         string `json:"pair,omitempty"`
	TokenIn      string `json:"token_in,omitempty"`
	TokenOut     string `json:"token_out,omitempty"`
	ReserveIn    string `json:"reserve_in"`
	ReserveOut   string `json:"reserve_out"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	AmountInFmt  string `json:"amount_in_fmt,omitempty"`
	AmountOutFmt string `json:"amount_out_fmt,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		out                   quoteOutput
		reserveIn, reserveOut *big.Int
		metaIn, metaOut       *model.TokenMeta
	)

	if cfg.Live() {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		pair, err := replay.ParseAddress(cfg.Pair, "pair")
		if err != nil {
			return err
		}
		tokenIn, err := replay.ParseAddress(cfg.TokenIn, "token-in")
		if err != nil {
			return err
		}

		reader, err := dex.NewPairReader(chainClient, 0, logger)
		if err != nil {
			return err
		}
		reserves, err := reader.Reserves(ctx, pair)
		if err != nil {
			return err
		}
		var tokenOut common.Address
		reserveIn, reserveOut, tokenOut, err = reserves.Orient(tokenIn)
		if err != nil {
			return err
		}

		metaIn = tokenMeta(ctx, chainClient, tokenIn, logger)
		metaOut = tokenMeta(ctx, chainClient, tokenOut, logger)
		out.Pair = pair.Hex()
		out.TokenIn = tokenIn.Hex()
		out.TokenOut = tokenOut.Hex()
	} else {
		if reserveIn, err = replay.ParseAmount(cfg.ReserveIn, "reserve-in"); err != nil {
			return err
		}
		if reserveOut, err = replay.ParseAmount(cfg.ReserveOut, "reserve-out"); err != nil {
			return err
		}
	}

	var amountIn, amountOut *big.Int
	if cfg.AmountIn != "" {
		if amountIn, err = replay.ParseAmount(cfg.AmountIn, "amount-in"); err != nil {
			return err
		}
		if amountOut, err = amm.QuoteSwapOutput(amountIn, reserveIn, reserveOut); err != nil {
			return err
		}
	} else {
		if amountOut, err = replay.ParseAmount(cfg.AmountOut, "amount-out"); err != nil {
			return err
		}
		if amountIn, err = amm.QuoteSwapInput(amountOut, reserveIn, reserveOut); err != nil {
			return err
		}
	}

	out.ReserveIn = reserveIn.String()
	out.ReserveOut = reserveOut.String()
	out.AmountIn = amountIn.String()
	out.AmountOut = amountOut.String()
	if metaIn != nil {
		out.AmountInFmt = dex.FormatAmount(amountIn, metaIn.Decimals) + symbolSuffix(metaIn)
	}
	if metaOut != nil {
		out.AmountOutFmt = dex.FormatAmount(amountOut, metaOut.Decimals) + symbolSuffix(metaOut)
	}

	logger.Debug("quote", zap.String("amount_in", out.AmountIn), zap.String("amount_out", out.AmountOut))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// tokenMeta returns nil when metadata is unavailable; the quote still prints raw amounts.
func tokenMeta(ctx context.Context, caller dex.Caller, token common.Address, logger *zap.Logger) *model.TokenMeta {
	meta, err := dex.FetchTokenMeta(ctx, caller, token, logger)
	if err != nil {
		logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		return nil
	}
	return &meta
}

func symbolSuffix(meta *model.TokenMeta) string {
	if meta.Symbol == "" {
		return ""
	}
	return " " + meta.Symbol
}
