// Package replay drives a pool from a JSONL stream of operations.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/ledger"
	"ammPool/internal/metrics"
	"ammPool/internal/model"
	"ammPool/internal/storage"
)

// Config controls a replay run.
type Config struct {
	AssetA           common.Address
	AssetB           common.Address
	BatchSize        int
	EnforceAllowance bool
	StateStore       StateStore
}

// Summary counts what a run did with each input line.
type Summary struct {
	Total    int
	Applied  int
	Rejected int
	Skipped  int
	Events   int
}

// Runner applies operations to an in-memory pool and forwards the resulting
// events to storage.
type Runner struct {
	cfg     Config
	storage storage.Storage
	metrics *metrics.Recorder
	logger  *zap.Logger

	assets  *ledger.AssetLedger
	shares  *ledger.ShareLedger
	pool    *amm.Pool
	now     time.Time
	pending []model.PoolEvent
}

func NewRunner(cfg Config, sink storage.Storage, recorder *metrics.Recorder, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		storage: sink,
		metrics: recorder,
		logger:  logger,
	}
}

// Record buffers an event until the next flush.
func (r *Runner) Record(_ context.Context, event model.PoolEvent) error {
	r.pending = append(r.pending, event)
	return nil
}

// Pool returns the pool built by the last Run.
func (r *Runner) Pool() *amm.Pool {
	return r.pool
}

// Run replays inputPath, resuming after the last line recorded in the state store.
func (r *Runner) Run(ctx context.Context, inputPath string) (Summary, error) {
	var summary Summary
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 500
	}

	lastLine, err := r.setup(ctx)
	if err != nil {
		return summary, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return summary, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var lineNo uint64
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		summary.Total++

		if lineNo <= lastLine {
			summary.Skipped++
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return summary, fmt.Errorf("decode line %d: %w", lineNo, err)
		}

		applied, err := r.apply(ctx, op)
		if err != nil {
			return summary, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if applied {
			summary.Applied++
		} else {
			summary.Rejected++
		}

		if len(r.pending) >= r.cfg.BatchSize {
			summary.Events += len(r.pending)
			if err := r.flush(ctx, lineNo); err != nil {
				return summary, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}

	summary.Events += len(r.pending)
	if lineNo > lastLine {
		if err := r.flush(ctx, lineNo); err != nil {
			return summary, err
		}
	}

	r.logger.Info("replay complete",
		zap.Int("total", summary.Total),
		zap.Int("applied", summary.Applied),
		zap.Int("rejected", summary.Rejected),
		zap.Int("skipped", summary.Skipped),
		zap.Int("events", summary.Events),
	)
	return summary, nil
}

// setup builds fresh ledgers and a pool, restoring them from saved state when
// there is any. It returns the last line already applied.
func (r *Runner) setup(ctx context.Context) (uint64, error) {
	var opts []ledger.AssetOption
	if !r.cfg.EnforceAllowance {
		opts = append(opts, ledger.WithoutAllowances())
	}
	r.assets = ledger.NewAssetLedger(opts...)
	r.shares = ledger.NewShareLedger()
	r.pending = nil

	poolCfg := amm.Config{
		AssetA:  r.cfg.AssetA,
		AssetB:  r.cfg.AssetB,
		Assets:  r.assets,
		Shares:  r.shares,
		Journal: r,
		Metrics: r.metrics,
		Clock:   func() time.Time { return r.now },
	}

	var (
		state model.ReplayState
		found bool
		err   error
	)
	if r.cfg.StateStore != nil {
		state, found, err = r.cfg.StateStore.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load state: %w", err)
		}
	}
	if !found {
		r.pool, err = amm.NewPool(poolCfg, r.logger)
		if err != nil {
			return 0, fmt.Errorf("create pool: %w", err)
		}
		return 0, nil
	}

	if err := r.assets.Restore(state.Ledger.Assets); err != nil {
		return 0, err
	}
	if err := r.shares.Restore(state.Ledger.Shares); err != nil {
		return 0, err
	}
	r.pool, err = amm.RestorePool(ctx, poolCfg, state.Pool, r.logger)
	if err != nil {
		return 0, fmt.Errorf("restore pool: %w", err)
	}
	r.logger.Info("resume from state", zap.Uint64("last_line", state.LastLine), zap.Uint64("seq", state.Pool.Seq))
	return state.LastLine, nil
}

// apply runs one operation. A pool or ledger rejection is reported as
// applied=false; only malformed operations return an error.
func (r *Runner) apply(ctx context.Context, op model.Operation) (bool, error) {
	r.now = time.Unix(int64(op.Timestamp), 0)

	var opErr error
	switch op.Op {
	case model.OpFund, model.OpApprove:
		asset, err := ParseAddress(op.Asset, "asset")
		if err != nil {
			return false, err
		}
		account, err := ParseAddress(op.Sender, "sender")
		if err != nil {
			return false, err
		}
		amount, err := requiredAmount(op.Amount, "amount")
		if err != nil {
			return false, err
		}
		if op.Op == model.OpFund {
			opErr = r.assets.Credit(asset, account, amount)
		} else {
			opErr = r.assets.Approve(asset, account, amount)
		}
	case model.OpAddLiquidity:
		params, err := addLiquidityParams(op, r.pool)
		if err != nil {
			return false, err
		}
		_, opErr = r.pool.AddLiquidity(ctx, params)
	case model.OpRemoveLiquidity:
		params, err := removeLiquidityParams(op)
		if err != nil {
			return false, err
		}
		_, opErr = r.pool.RemoveLiquidity(ctx, params)
	case model.OpSwap:
		params, err := swapParams(op)
		if err != nil {
			return false, err
		}
		_, opErr = r.pool.Swap(ctx, params)
	default:
		return false, fmt.Errorf("unknown op %q", op.Op)
	}

	if opErr != nil {
		r.logger.Warn("operation rejected",
			zap.String("op", op.Op),
			zap.Uint64("timestamp", op.Timestamp),
			zap.String("kind", amm.ErrorKind(opErr)),
			zap.Error(opErr),
		)
		return false, nil
	}
	return true, nil
}

// flush writes pending events, then records progress up to lineNo.
func (r *Runner) flush(ctx context.Context, lineNo uint64) error {
	if r.storage != nil && len(r.pending) > 0 {
		if err := r.storage.PutEventBatch(ctx, r.pending); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}
	r.logger.Debug("batch flushed", zap.Int("events", len(r.pending)), zap.Uint64("line", lineNo))
	r.pending = r.pending[:0]

	if r.cfg.StateStore == nil {
		return nil
	}
	state := model.ReplayState{
		LastLine: lineNo,
		Pool:     r.pool.Snapshot(),
		Ledger: model.LedgerSnapshot{
			Assets: r.assets.Snapshot(),
			Shares: r.shares.Snapshot(),
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.cfg.StateStore.Save(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
