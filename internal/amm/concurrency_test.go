package amm

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/model"
)

func TestConcurrentOperationsSerialise(t *testing.T) {
	const (
		workers    = 8
		iterations = 25
	)
	ctx := context.Background()
	f := newFixture(t)
	for _, token := range []common.Address{tokenA, tokenB} {
		if err := f.assets.Credit(token, alice, big.NewInt(10_000_000)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	f.add(t, alice, 100_000, 400_000)

	var wg sync.WaitGroup
	run := func(name string, op func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if err := op(); err != nil {
					t.Errorf("%s: %v", name, err)
					return
				}
			}
		}()
	}

	for w := 0; w < workers; w++ {
		run("swap a->b", func() error {
			_, err := f.pool.Swap(ctx, SwapParams{
				AmountIn: big.NewInt(100), AssetIn: tokenA, AssetOut: tokenB,
				Sender: bob, Recipient: bob, Deadline: testNow,
			})
			return err
		})
		run("swap b->a", func() error {
			_, err := f.pool.Swap(ctx, SwapParams{
				AmountIn: big.NewInt(400), AssetIn: tokenB, AssetOut: tokenA,
				Sender: bob, Recipient: bob, Deadline: testNow,
			})
			return err
		})
		run("add", func() error {
			_, err := f.pool.AddLiquidity(ctx, AddLiquidityParams{
				AssetA: tokenA, AssetB: tokenB,
				AmountADesired: big.NewInt(1_000), AmountBDesired: big.NewInt(4_000),
				Sender: alice, Recipient: alice, Deadline: testNow,
			})
			return err
		})
		run("remove", func() error {
			_, err := f.pool.RemoveLiquidity(ctx, RemoveLiquidityParams{
				Shares: big.NewInt(50), Sender: alice, Recipient: alice, Deadline: testNow,
			})
			return err
		})
		run("read", func() error {
			if err := CheckInvariants(f.pool.State()); err != nil {
				return err
			}
			_, err := f.pool.QuotePrice(tokenA, tokenB)
			return err
		})
	}
	wg.Wait()
	if t.Failed() {
		return
	}

	state := f.pool.State()
	if err := CheckInvariants(state); err != nil {
		t.Fatalf("final state: %v", err)
	}
	if got := f.assets.Custody(tokenA); got.Cmp(state.ReserveA) != 0 {
		t.Fatalf("custody a = %s, reserve a = %s", got, state.ReserveA)
	}
	if got := f.assets.Custody(tokenB); got.Cmp(state.ReserveB) != 0 {
		t.Fatalf("custody b = %s, reserve b = %s", got, state.ReserveB)
	}
	supply, err := f.shares.TotalSupply(ctx)
	if err != nil || supply.Cmp(state.TotalShares) != 0 {
		t.Fatalf("share supply = %v (err %v), total shares = %s", supply, err, state.TotalShares)
	}

	events := f.journal.events
	if want := 1 + workers*iterations*4; len(events) != want {
		t.Fatalf("events = %d, want %d", len(events), want)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq != events[i-1].Seq+1 {
			t.Fatalf("seq %d follows %d", events[i].Seq, events[i-1].Seq)
		}
		if events[i].EventName != model.EventSwap {
			continue
		}
		before, after := eventProduct(t, events[i-1]), eventProduct(t, events[i])
		if after.Cmp(before) < 0 {
			t.Fatalf("swap seq %d decreased product %s -> %s", events[i].Seq, before, after)
		}
	}
}

func eventProduct(t *testing.T, ev model.PoolEvent) *big.Int {
	t.Helper()
	a, okA := new(big.Int).SetString(ev.ReserveA, 10)
	b, okB := new(big.Int).SetString(ev.ReserveB, 10)
	if !okA || !okB {
		t.Fatalf("event %d has bad reserves %q/%q", ev.Seq, ev.ReserveA, ev.ReserveB)
	}
	return a.Mul(a, b)
}
