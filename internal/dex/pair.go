package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPairMismatch is returned when a token is not one of the pair's tokens.
	ErrPairMismatch = errors.New("token not in pair")
	// ErrEmptyReserves is returned when a pair holds no liquidity.
	ErrEmptyReserves = errors.New("pair has empty reserves")
)

const defaultPairCacheSize = 1024

type pairTokens struct {
	token0 common.Address
	token1 common.Address
}

// PairReserves is a read of a constant-product pair.
type PairReserves struct {
	Pair               common.Address
	Token0             common.Address
	Token1             common.Address
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Orient returns the reserves as (reserve in, reserve out) for a swap of tokenIn.
func (r PairReserves) Orient(tokenIn common.Address) (*big.Int, *big.Int, common.Address, error) {
	switch tokenIn {
	case r.Token0:
		return r.Reserve0, r.Reserve1, r.Token1, nil
	case r.Token1:
		return r.Reserve1, r.Reserve0, r.Token0, nil
	default:
		return nil, nil, common.Address{}, fmt.Errorf("%w: %s not in %s", ErrPairMismatch, tokenIn.Hex(), r.Pair.Hex())
	}
}

// PairReader reads reserves of on-chain pairs. Pair token addresses are
// immutable and cached.
type PairReader struct {
	caller Caller
	tokens *lru.Cache[common.Address, pairTokens]
	logger *zap.Logger
}

func NewPairReader(caller Caller, cacheSize int, logger *zap.Logger) (*PairReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if cacheSize <= 0 {
		cacheSize = defaultPairCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens, err := lru.New[common.Address, pairTokens](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("pair cache: %w", err)
	}
	return &PairReader{caller: caller, tokens: tokens, logger: logger}, nil
}

// Reserves reads token0, token1 and getReserves of pair at the latest block.
func (r *PairReader) Reserves(ctx context.Context, pair common.Address) (PairReserves, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return PairReserves{}, fmt.Errorf("parse pair abi: %w", err)
	}

	out := PairReserves{Pair: pair}
	cached, hit := r.tokens.Get(pair)

	g, gctx := errgroup.WithContext(ctx)
	if !hit {
		g.Go(func() error {
			values, err := callMethod(gctx, r.caller, pair, pairABI, "token0", nil)
			if err != nil {
				return err
			}
			cached.token0, err = asAddress(values[0])
			if err != nil {
				return fmt.Errorf("token0: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			values, err := callMethod(gctx, r.caller, pair, pairABI, "token1", nil)
			if err != nil {
				return err
			}
			cached.token1, err = asAddress(values[0])
			if err != nil {
				return fmt.Errorf("token1: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		values, err := callMethod(gctx, r.caller, pair, pairABI, "getReserves", nil)
		if err != nil {
			return err
		}
		if len(values) < 3 {
			return fmt.Errorf("getReserves: expected 3 values, got %d", len(values))
		}
		if out.Reserve0, err = asBigInt(values[0]); err != nil {
			return fmt.Errorf("reserve0: %w", err)
		}
		if out.Reserve1, err = asBigInt(values[1]); err != nil {
			return fmt.Errorf("reserve1: %w", err)
		}
		ts, err := asBigInt(values[2])
		if err != nil {
			return fmt.Errorf("block timestamp: %w", err)
		}
		out.BlockTimestampLast = uint32(ts.Uint64())
		return nil
	})
	if err := g.Wait(); err != nil {
		return PairReserves{}, fmt.Errorf("read pair %s: %w", pair.Hex(), err)
	}

	if !hit {
		r.tokens.Add(pair, cached)
	}
	out.Token0, out.Token1 = cached.token0, cached.token1

	if out.Reserve0.Sign() == 0 || out.Reserve1.Sign() == 0 {
		return out, fmt.Errorf("%w: %s", ErrEmptyReserves, pair.Hex())
	}
	r.logger.Debug("pair reserves",
		zap.String("pair", pair.Hex()),
		zap.Stringer("reserve0", out.Reserve0),
		zap.Stringer("reserve1", out.Reserve1),
		zap.Bool("cached_tokens", hit),
	)
	return out, nil
}
