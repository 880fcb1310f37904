package amm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/ledger"
)

var errRejected = errors.New("rejected by ledger")

type flakyAssets struct {
	*ledger.AssetLedger
	failIn  map[common.Address]bool
	failOut map[common.Address]bool
	onFail  func()
}

func (f *flakyAssets) TransferIn(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failIn[asset] {
		if f.onFail != nil {
			f.onFail()
		}
		return errRejected
	}
	return f.AssetLedger.TransferIn(ctx, asset, from, amount)
}

func (f *flakyAssets) TransferOut(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failOut[asset] {
		return errRejected
	}
	return f.AssetLedger.TransferOut(ctx, asset, to, amount)
}

type flakyShares struct {
	*ledger.ShareLedger
	failMint bool
}

func (f *flakyShares) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if f.failMint {
		return errRejected
	}
	return f.ShareLedger.Mint(ctx, to, amount)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyAssets, *flakyShares) {
	t.Helper()
	f := newFixture(t)
	assets := &flakyAssets{
		AssetLedger: f.assets,
		failIn:      make(map[common.Address]bool),
		failOut:     make(map[common.Address]bool),
	}
	shares := &flakyShares{ShareLedger: f.shares}
	pool, err := NewPool(Config{
		AssetA:  tokenA,
		AssetB:  tokenB,
		Assets:  assets,
		Shares:  shares,
		Journal: f.journal,
		Clock:   func() time.Time { return time.Unix(testNow, 0) },
	}, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	f.pool = pool
	return f, assets, shares
}

func assertBalances(t *testing.T, l *ledger.AssetLedger, account common.Address, a, b int64) {
	t.Helper()
	gotA, gotB := l.BalanceOf(tokenA, account), l.BalanceOf(tokenB, account)
	if gotA.Int64() != a || gotB.Int64() != b {
		t.Fatalf("balances of %s = (%s, %s), want (%d, %d)", account.Hex(), gotA, gotB, a, b)
	}
}

func TestAddLiquidityUnwindsOnTransferInFailure(t *testing.T) {
	f, assets, _ := newFlakyFixture(t)
	f.add(t, alice, 100, 400)
	assets.failIn[tokenB] = true

	_, err := f.pool.AddLiquidity(context.Background(), AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: big.NewInt(10), AmountBDesired: big.NewInt(40),
		Sender: bob, Recipient: bob, Deadline: testNow,
	})
	if !errors.Is(err, ErrLedgerRejected) || !errors.Is(err, errRejected) {
		t.Fatalf("expected wrapped ledger rejection, got %v", err)
	}
	if errors.Is(err, ErrCompensationFailed) {
		t.Fatalf("compensation should have succeeded: %v", err)
	}
	assertState(t, f.pool, 100, 400, 200)
	assertBalances(t, f.assets, bob, 1_000_000, 1_000_000)
	if got := f.assets.Custody(tokenA); got.Int64() != 100 {
		t.Fatalf("custody a = %s, want 100", got)
	}
	if len(f.journal.events) != 1 {
		t.Fatalf("rejected add should not be journaled, got %d events", len(f.journal.events))
	}
}

func TestAddLiquidityUnwindsOnMintFailure(t *testing.T) {
	f, _, shares := newFlakyFixture(t)
	shares.failMint = true

	_, err := f.pool.AddLiquidity(context.Background(), AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: big.NewInt(100), AmountBDesired: big.NewInt(400),
		Sender: alice, Recipient: alice, Deadline: testNow,
	})
	if !errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
	assertState(t, f.pool, 0, 0, 0)
	assertBalances(t, f.assets, alice, 1_000_000, 1_000_000)
	supply, _ := f.shares.TotalSupply(context.Background())
	if supply.Sign() != 0 {
		t.Fatalf("supply = %s, want 0", supply)
	}
}

func TestRemoveLiquidityUnwindsOnTransferOutFailure(t *testing.T) {
	ctx := context.Background()
	f, assets, _ := newFlakyFixture(t)
	f.add(t, alice, 100, 400)
	assets.failOut[tokenB] = true

	_, err := f.pool.RemoveLiquidity(ctx, RemoveLiquidityParams{
		Shares: big.NewInt(50), Sender: alice, Recipient: bob, Deadline: testNow,
	})
	if !errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
	assertState(t, f.pool, 100, 400, 200)
	assertBalances(t, f.assets, bob, 1_000_000, 1_000_000)
	balance, _ := f.shares.BalanceOf(ctx, alice)
	if balance.Int64() != 200 {
		t.Fatalf("alice shares = %s, want 200", balance)
	}
}

func TestSwapReportsFailedCompensation(t *testing.T) {
	f, assets, _ := newFlakyFixture(t)
	f.add(t, alice, 100, 400)
	assets.failOut[tokenA] = true
	assets.failOut[tokenB] = true

	_, err := f.pool.Swap(context.Background(), SwapParams{
		AmountIn: big.NewInt(10), AssetIn: tokenA, AssetOut: tokenB,
		Sender: bob, Recipient: bob, Deadline: testNow,
	})
	if !errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
	if !errors.Is(err, ErrCompensationFailed) {
		t.Fatalf("expected ErrCompensationFailed, got %v", err)
	}
	if ErrorKind(err) != "compensation_failed" {
		t.Fatalf("kind = %s", ErrorKind(err))
	}
	assertState(t, f.pool, 100, 400, 200)
}

func TestUnwindIgnoresCallerCancellation(t *testing.T) {
	f, assets, _ := newFlakyFixture(t)
	f.add(t, alice, 100, 400)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assets.failIn[tokenB] = true
	assets.onFail = cancel

	_, err := f.pool.AddLiquidity(ctx, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: big.NewInt(10), AmountBDesired: big.NewInt(40),
		Sender: bob, Recipient: bob, Deadline: testNow,
	})
	if !errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
	if errors.Is(err, ErrCompensationFailed) {
		t.Fatalf("compensation observed caller cancellation: %v", err)
	}
	assertBalances(t, f.assets, bob, 1_000_000, 1_000_000)
}
