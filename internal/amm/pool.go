// Package amm implements the accounting state machine of a two-asset
// constant-product pool.
package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammPool/internal/metrics"
	"ammPool/internal/model"
)

const (
	opAddLiquidity    = "add_liquidity"
	opRemoveLiquidity = "remove_liquidity"
	opSwap            = "swap"
)

// Config wires a Pool to its collaborators.
type Config struct {
	AssetA  common.Address
	AssetB  common.Address
	Assets  AssetLedger
	Shares  ShareLedger
	Journal Journal
	Metrics *metrics.Recorder
	// Clock supplies the time deadlines are checked against. Defaults to time.Now.
	Clock func() time.Time
}

// Pool owns the reserves of two assets and the outstanding share supply.
// Every method serialises on a single mutex, so no caller ever observes a
// partially applied operation.
type Pool struct {
	mu sync.Mutex

	assetA common.Address
	assetB common.Address

	reserveA    *big.Int
	reserveB    *big.Int
	totalShares *big.Int

	assets  AssetLedger
	shares  ShareLedger
	journal Journal
	metrics *metrics.Recorder
	clock   func() time.Time
	logger  *zap.Logger
	seq     uint64
}

// NewPool creates an empty pool bound to cfg.AssetA and cfg.AssetB.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.AssetA == cfg.AssetB {
		return nil, fmt.Errorf("%w: assets must differ (%s)", ErrInvalidAssetPair, cfg.AssetA.Hex())
	}
	if cfg.Assets == nil {
		return nil, fmt.Errorf("asset ledger is nil")
	}
	if cfg.Shares == nil {
		return nil, fmt.Errorf("share ledger is nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		assetA:      cfg.AssetA,
		assetB:      cfg.AssetB,
		reserveA:    new(big.Int),
		reserveB:    new(big.Int),
		totalShares: new(big.Int),
		assets:      cfg.Assets,
		shares:      cfg.Shares,
		journal:     cfg.Journal,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      logger.With(zap.String("asset_a", cfg.AssetA.Hex()), zap.String("asset_b", cfg.AssetB.Hex())),
	}, nil
}

// RestorePool creates a pool from a snapshot taken by an earlier process. The
// snapshot must satisfy the pool invariants and agree with the share ledger's
// total supply.
func RestorePool(ctx context.Context, cfg Config, snapshot model.PoolSnapshot, logger *zap.Logger) (*Pool, error) {
	state, err := StateFromSnapshot(snapshot)
	if err != nil {
		return nil, err
	}
	if state.AssetA != cfg.AssetA || state.AssetB != cfg.AssetB {
		return nil, fmt.Errorf("%w: snapshot pair %s/%s does not match %s/%s", ErrInvalidAssetPair,
			state.AssetA.Hex(), state.AssetB.Hex(), cfg.AssetA.Hex(), cfg.AssetB.Hex())
	}
	if err := CheckInvariants(state); err != nil {
		return nil, err
	}

	p, err := NewPool(cfg, logger)
	if err != nil {
		return nil, err
	}

	supply, err := p.shares.TotalSupply(ctx)
	if err != nil {
		return nil, ledgerError("total supply", err)
	}
	if supply.Cmp(state.TotalShares) != 0 {
		return nil, fmt.Errorf("%w: share ledger supply %s does not match snapshot %s", ErrInvariantViolated, supply, state.TotalShares)
	}

	p.restore(state)
	p.seq = snapshot.Seq
	p.metrics.SetPoolState(p.assetA.Hex(), p.assetB.Hex(), p.reserveA, p.reserveB, p.totalShares)
	return p, nil
}

// Snapshot returns the pool record together with its event sequence.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.current().Snapshot()
	snap.Seq = p.seq
	return snap
}

// AddLiquidityParams describes a deposit. AssetA and AssetB may be given in
// either order; amounts follow the order given here.
type AddLiquidityParams struct {
	AssetA         common.Address
	AssetB         common.Address
	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	Sender         common.Address
	Recipient      common.Address
	Deadline       uint64
}

// AddLiquidityResult reports the accepted amounts, in the caller's asset order.
type AddLiquidityResult struct {
	AmountA *big.Int
	AmountB *big.Int
	Shares  *big.Int
}

// RemoveLiquidityParams describes a redemption of Sender's shares.
type RemoveLiquidityParams struct {
	Shares     *big.Int
	AmountAMin *big.Int
	AmountBMin *big.Int
	Sender     common.Address
	Recipient  common.Address
	Deadline   uint64
}

// RemoveLiquidityResult reports the amounts paid to the recipient.
type RemoveLiquidityResult struct {
	AmountA *big.Int
	AmountB *big.Int
}

// SwapParams describes an exact-input swap.
type SwapParams struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	AssetIn      common.Address
	AssetOut     common.Address
	Sender       common.Address
	Recipient    common.Address
	Deadline     uint64
}

// SwapResult reports the executed amounts.
type SwapResult struct {
	AmountIn  *big.Int
	AmountOut *big.Int
}

// AssetA returns the first bound asset.
func (p *Pool) AssetA() common.Address { return p.assetA }

// AssetB returns the second bound asset.
func (p *Pool) AssetB() common.Address { return p.assetB }

// State returns a copy of the current pool record.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current()
}

// AddLiquidity deposits both assets and mints shares to the recipient.
func (p *Pool) AddLiquidity(ctx context.Context, params AddLiquidityParams) (AddLiquidityResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.addLiquidity(ctx, params)
	p.observe(opAddLiquidity, err)
	return result, err
}

func (p *Pool) addLiquidity(ctx context.Context, params AddLiquidityParams) (AddLiquidityResult, error) {
	if err := p.checkDeadline(params.Deadline); err != nil {
		return AddLiquidityResult{}, err
	}

	reversed, err := p.orient(params.AssetA, params.AssetB)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	desiredA, desiredB := params.AmountADesired, params.AmountBDesired
	minA, minB := params.AmountAMin, params.AmountBMin
	if reversed {
		desiredA, desiredB = desiredB, desiredA
		minA, minB = minB, minA
	}

	if !isPositive(desiredA) || !isPositive(desiredB) {
		return AddLiquidityResult{}, fmt.Errorf("%w: desired amounts must be positive", ErrNonPositiveAmount)
	}
	if minA, err = minimum(minA, "amount a min"); err != nil {
		return AddLiquidityResult{}, err
	}
	if minB, err = minimum(minB, "amount b min"); err != nil {
		return AddLiquidityResult{}, err
	}

	amountA, amountB, minted, err := p.depositAmounts(desiredA, desiredB)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if amountA.Cmp(minA) < 0 {
		return AddLiquidityResult{}, fmt.Errorf("%w: amount a %s below minimum %s", ErrSlippageExceeded, amountA, minA)
	}
	if amountB.Cmp(minB) < 0 {
		return AddLiquidityResult{}, fmt.Errorf("%w: amount b %s below minimum %s", ErrSlippageExceeded, amountB, minB)
	}

	next := p.current()
	next.ReserveA.Add(next.ReserveA, amountA)
	next.ReserveB.Add(next.ReserveB, amountB)
	next.TotalShares.Add(next.TotalShares, minted)

	prev, err := p.commit(next)
	if err != nil {
		return AddLiquidityResult{}, err
	}

	var undo unwinder
	if err := p.assets.TransferIn(ctx, p.assetA, params.Sender, amountA); err != nil {
		return AddLiquidityResult{}, p.abort(ctx, prev, &undo, ledgerError("transfer in asset a", err))
	}
	undo.push("return asset a", func(ctx context.Context) error {
		return p.assets.TransferOut(ctx, p.assetA, params.Sender, amountA)
	})
	if err := p.assets.TransferIn(ctx, p.assetB, params.Sender, amountB); err != nil {
		return AddLiquidityResult{}, p.abort(ctx, prev, &undo, ledgerError("transfer in asset b", err))
	}
	undo.push("return asset b", func(ctx context.Context) error {
		return p.assets.TransferOut(ctx, p.assetB, params.Sender, amountB)
	})
	if err := p.shares.Mint(ctx, params.Recipient, minted); err != nil {
		return AddLiquidityResult{}, p.abort(ctx, prev, &undo, ledgerError("mint shares", err))
	}

	p.record(ctx, model.EventLiquidityAdded, params.Sender, params.Recipient, model.LiquidityAddedData{
		AmountA: amountA.String(),
		AmountB: amountB.String(),
		Shares:  minted.String(),
	})

	if reversed {
		amountA, amountB = amountB, amountA
	}
	return AddLiquidityResult{AmountA: amountA, AmountB: amountB, Shares: minted}, nil
}

// depositAmounts sizes a deposit against the current reserves. The asset with
// the smaller share ratio is taken in full; the other is scaled to the exact
// pro-rata requirement of the minted shares, rounded up so existing holders
// are never diluted.
func (p *Pool) depositAmounts(desiredA, desiredB *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	if p.totalShares.Sign() == 0 {
		return clone(desiredA), clone(desiredB), initialShares(desiredA, desiredB), nil
	}

	ratioA := mulDiv(desiredA, p.totalShares, p.reserveA)
	ratioB := mulDiv(desiredB, p.totalShares, p.reserveB)

	var amountA, amountB, minted *big.Int
	if ratioA.Cmp(ratioB) <= 0 {
		minted = ratioA
		amountA = clone(desiredA)
		amountB = ceilMulDiv(minted, p.reserveB, p.totalShares)
	} else {
		minted = ratioB
		amountB = clone(desiredB)
		amountA = ceilMulDiv(minted, p.reserveA, p.totalShares)
	}

	if minted.Sign() == 0 {
		return nil, nil, nil, fmt.Errorf("%w: deposit of %s/%s mints no shares", ErrInsufficientLiquidityMinted, desiredA, desiredB)
	}
	return amountA, amountB, minted, nil
}

// RemoveLiquidity burns the sender's shares and pays out the pro-rata reserves.
func (p *Pool) RemoveLiquidity(ctx context.Context, params RemoveLiquidityParams) (RemoveLiquidityResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.removeLiquidity(ctx, params)
	p.observe(opRemoveLiquidity, err)
	return result, err
}

func (p *Pool) removeLiquidity(ctx context.Context, params RemoveLiquidityParams) (RemoveLiquidityResult, error) {
	if err := p.checkDeadline(params.Deadline); err != nil {
		return RemoveLiquidityResult{}, err
	}
	if !isPositive(params.Shares) {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: shares", ErrNonPositiveAmount)
	}
	minA, err := minimum(params.AmountAMin, "amount a min")
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	minB, err := minimum(params.AmountBMin, "amount b min")
	if err != nil {
		return RemoveLiquidityResult{}, err
	}

	if params.Shares.Cmp(p.totalShares) > 0 {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: %s exceeds total supply %s", ErrInsufficientShares, params.Shares, p.totalShares)
	}
	balance, err := p.shares.BalanceOf(ctx, params.Sender)
	if err != nil {
		return RemoveLiquidityResult{}, ledgerError("share balance", err)
	}
	if balance.Cmp(params.Shares) < 0 {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: holder %s has %s, redeeming %s", ErrInsufficientShares, params.Sender.Hex(), balance, params.Shares)
	}

	amountA, amountB, err := p.redemptionAmounts(params.Shares)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	if amountA.Cmp(minA) < 0 {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: amount a %s below minimum %s", ErrSlippageExceeded, amountA, minA)
	}
	if amountB.Cmp(minB) < 0 {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: amount b %s below minimum %s", ErrSlippageExceeded, amountB, minB)
	}

	burned := clone(params.Shares)
	next := p.current()
	next.ReserveA.Sub(next.ReserveA, amountA)
	next.ReserveB.Sub(next.ReserveB, amountB)
	next.TotalShares.Sub(next.TotalShares, burned)

	prev, err := p.commit(next)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}

	var undo unwinder
	if err := p.shares.Burn(ctx, params.Sender, burned); err != nil {
		return RemoveLiquidityResult{}, p.abort(ctx, prev, &undo, ledgerError("burn shares", err))
	}
	undo.push("re-mint shares", func(ctx context.Context) error {
		return p.shares.Mint(ctx, params.Sender, burned)
	})
	if err := p.assets.TransferOut(ctx, p.assetA, params.Recipient, amountA); err != nil {
		return RemoveLiquidityResult{}, p.abort(ctx, prev, &undo, ledgerError("transfer out asset a", err))
	}
	undo.push("reclaim asset a", func(ctx context.Context) error {
		return p.assets.TransferIn(ctx, p.assetA, params.Recipient, amountA)
	})
	if err := p.assets.TransferOut(ctx, p.assetB, params.Recipient, amountB); err != nil {
		return RemoveLiquidityResult{}, p.abort(ctx, prev, &undo, ledgerError("transfer out asset b", err))
	}

	p.record(ctx, model.EventLiquidityRemoved, params.Sender, params.Recipient, model.LiquidityRemovedData{
		AmountA: amountA.String(),
		AmountB: amountB.String(),
		Shares:  burned.String(),
	})

	return RemoveLiquidityResult{AmountA: amountA, AmountB: amountB}, nil
}

// PreviewRemoveLiquidity returns what burning shares would pay out now.
func (p *Pool) PreviewRemoveLiquidity(shares *big.Int) (*big.Int, *big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !isPositive(shares) {
		return nil, nil, fmt.Errorf("%w: shares", ErrNonPositiveAmount)
	}
	if shares.Cmp(p.totalShares) > 0 {
		return nil, nil, fmt.Errorf("%w: %s exceeds total supply %s", ErrInsufficientShares, shares, p.totalShares)
	}
	return p.redemptionAmounts(shares)
}

// redemptionAmounts truncates toward zero so a redemption never exceeds the
// holder's pro-rata claim.
func (p *Pool) redemptionAmounts(shares *big.Int) (*big.Int, *big.Int, error) {
	if p.totalShares.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: pool has no shares outstanding", ErrInsufficientShares)
	}
	amountA := mulDiv(shares, p.reserveA, p.totalShares)
	amountB := mulDiv(shares, p.reserveB, p.totalShares)
	return amountA, amountB, nil
}

// Swap exchanges an exact amount of one pool asset for the other.
func (p *Pool) Swap(ctx context.Context, params SwapParams) (SwapResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.swap(ctx, params)
	p.observe(opSwap, err)
	return result, err
}

func (p *Pool) swap(ctx context.Context, params SwapParams) (SwapResult, error) {
	if err := p.checkDeadline(params.Deadline); err != nil {
		return SwapResult{}, err
	}

	reversed, err := p.orient(params.AssetIn, params.AssetOut)
	if err != nil {
		return SwapResult{}, err
	}
	if !isPositive(params.AmountIn) {
		return SwapResult{}, fmt.Errorf("%w: amount in", ErrNonPositiveAmount)
	}
	minOut, err := minimum(params.AmountOutMin, "amount out min")
	if err != nil {
		return SwapResult{}, err
	}

	reserveIn, reserveOut := p.reserveA, p.reserveB
	if reversed {
		reserveIn, reserveOut = p.reserveB, p.reserveA
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return SwapResult{}, fmt.Errorf("%w: pool is empty", ErrInsufficientReserves)
	}

	amountIn := clone(params.AmountIn)
	amountOut := swapOutput(amountIn, reserveIn, reserveOut)
	if amountOut.Cmp(reserveOut) >= 0 {
		return SwapResult{}, fmt.Errorf("%w: amount out %s would exhaust reserve %s", ErrInsufficientReserves, amountOut, reserveOut)
	}
	if amountOut.Cmp(minOut) < 0 {
		return SwapResult{}, fmt.Errorf("%w: amount out %s below minimum %s", ErrSlippageExceeded, amountOut, minOut)
	}

	next := p.current()
	if reversed {
		next.ReserveB.Add(next.ReserveB, amountIn)
		next.ReserveA.Sub(next.ReserveA, amountOut)
	} else {
		next.ReserveA.Add(next.ReserveA, amountIn)
		next.ReserveB.Sub(next.ReserveB, amountOut)
	}
	if next.Product().Cmp(p.current().Product()) < 0 {
		return SwapResult{}, fmt.Errorf("%w: swap would decrease the reserve product", ErrInvariantViolated)
	}

	prev, err := p.commit(next)
	if err != nil {
		return SwapResult{}, err
	}

	var undo unwinder
	if err := p.assets.TransferIn(ctx, params.AssetIn, params.Sender, amountIn); err != nil {
		return SwapResult{}, p.abort(ctx, prev, &undo, ledgerError("transfer in", err))
	}
	undo.push("refund input", func(ctx context.Context) error {
		return p.assets.TransferOut(ctx, params.AssetIn, params.Sender, amountIn)
	})
	if err := p.assets.TransferOut(ctx, params.AssetOut, params.Recipient, amountOut); err != nil {
		return SwapResult{}, p.abort(ctx, prev, &undo, ledgerError("transfer out", err))
	}

	p.record(ctx, model.EventSwap, params.Sender, params.Recipient, model.SwapData{
		AssetIn:   params.AssetIn.Hex(),
		AssetOut:  params.AssetOut.Hex(),
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
	})

	return SwapResult{AmountIn: amountIn, AmountOut: amountOut}, nil
}

// QuotePrice returns units of assetY per unit of assetX, scaled by 10^PricePrecision.
func (p *Pool) QuotePrice(assetX, assetY common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reversed, err := p.orient(assetX, assetY)
	if err != nil {
		return nil, err
	}
	reserveX, reserveY := p.reserveA, p.reserveB
	if reversed {
		reserveX, reserveY = p.reserveB, p.reserveA
	}
	if reserveX.Sign() == 0 || reserveY.Sign() == 0 {
		return nil, ErrEmptyPoolPriceUndefined
	}
	return mulDiv(reserveY, priceScale, reserveX), nil
}

// orient reports whether (x, y) is the pool pair in reversed order. Any other
// pair is rejected.
func (p *Pool) orient(x, y common.Address) (bool, error) {
	switch {
	case x == p.assetA && y == p.assetB:
		return false, nil
	case x == p.assetB && y == p.assetA:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s/%s is not %s/%s", ErrInvalidAssetPair, x.Hex(), y.Hex(), p.assetA.Hex(), p.assetB.Hex())
	}
}

func (p *Pool) checkDeadline(deadline uint64) error {
	now := p.clock().Unix()
	if now < 0 || uint64(now) > deadline {
		return fmt.Errorf("%w: now %d, deadline %d", ErrDeadlineExpired, now, deadline)
	}
	return nil
}

func (p *Pool) current() State {
	return State{
		AssetA:      p.assetA,
		AssetB:      p.assetB,
		ReserveA:    clone(p.reserveA),
		ReserveB:    clone(p.reserveB),
		TotalShares: clone(p.totalShares),
	}
}

// commit installs next after checking the invariants and returns the state it replaced.
func (p *Pool) commit(next State) (State, error) {
	if err := CheckInvariants(next); err != nil {
		return State{}, err
	}
	prev := p.current()
	p.restore(next)
	return prev, nil
}

func (p *Pool) restore(s State) {
	p.reserveA = clone(s.ReserveA)
	p.reserveB = clone(s.ReserveB)
	p.totalShares = clone(s.TotalShares)
}

// abort puts back the pre-operation state and reverses ledger calls already made.
func (p *Pool) abort(ctx context.Context, prev State, undo *unwinder, cause error) error {
	p.restore(prev)
	if err := undo.unwind(ctx, p.logger); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Pool) observe(op string, err error) {
	kind := ErrorKind(err)
	p.metrics.ObserveOperation(op, kind)
	if err != nil {
		p.logger.Debug("operation rejected", zap.String("op", op), zap.String("kind", kind), zap.Error(err))
		return
	}
	p.metrics.SetPoolState(p.assetA.Hex(), p.assetB.Hex(), p.reserveA, p.reserveB, p.totalShares)
	p.logger.Debug("operation committed",
		zap.String("op", op),
		zap.Stringer("reserve_a", p.reserveA),
		zap.Stringer("reserve_b", p.reserveB),
		zap.Stringer("total_shares", p.totalShares),
	)
}

func (p *Pool) record(ctx context.Context, name string, sender, recipient common.Address, decoded interface{}) {
	p.seq++
	if p.journal == nil {
		return
	}

	event := model.PoolEvent{
		Seq:         p.seq,
		AssetA:      p.assetA.Hex(),
		AssetB:      p.assetB.Hex(),
		EventName:   name,
		Timestamp:   uint64(p.clock().Unix()),
		Sender:      sender.Hex(),
		Recipient:   recipient.Hex(),
		Decoded:     decoded,
		ReserveA:    p.reserveA.String(),
		ReserveB:    p.reserveB.String(),
		TotalShares: p.totalShares.String(),
	}
	if err := p.journal.Record(ctx, event); err != nil {
		p.logger.Warn("journal record failed", zap.String("event", name), zap.Uint64("seq", p.seq), zap.Error(err))
	}
}
