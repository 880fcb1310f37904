package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"ammPool/internal/model"
)

// newTestStore connects to AMMPOOL_TEST_PG_DSN and skips when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AMMPOOL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AMMPOOL_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestPutEventBatchIgnoresDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assetA := fmt.Sprintf("0x%040x", time.Now().UnixNano())
	assetB := "0x00000000000000000000000000000000000000bb"
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DELETE FROM pool_events WHERE asset_a = $1`, assetA)
	})

	event := func(seq uint64, reserveA string) model.PoolEvent {
		return model.PoolEvent{
			Seq:         seq,
			AssetA:      assetA,
			AssetB:      assetB,
			EventName:   model.EventSwap,
			Timestamp:   1_700_000_000,
			Sender:      "0x0000000000000000000000000000000000000001",
			Recipient:   "0x0000000000000000000000000000000000000001",
			Decoded:     model.SwapData{AmountIn: "10", AmountOut: "36"},
			ReserveA:    reserveA,
			ReserveB:    "364",
			TotalShares: "200",
		}
	}

	if err := store.PutEventBatch(ctx, []model.PoolEvent{event(1, "110"), event(2, "120")}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	// A resumed run re-sends seq 2 before moving on to seq 3.
	if err := store.PutEventBatch(ctx, []model.PoolEvent{event(2, "999"), event(3, "130")}); err != nil {
		t.Fatalf("replayed batch: %v", err)
	}

	var count int
	if err := store.pool.QueryRow(ctx, `SELECT count(*) FROM pool_events WHERE asset_a = $1`, assetA).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("rows = %d, want 3", count)
	}

	var reserveA string
	if err := store.pool.QueryRow(ctx,
		`SELECT reserve_a::text FROM pool_events WHERE asset_a = $1 AND seq = 2`, assetA,
	).Scan(&reserveA); err != nil {
		t.Fatalf("select seq 2: %v", err)
	}
	if reserveA != "120" {
		t.Fatalf("seq 2 reserve_a = %s, want the first write 120", reserveA)
	}
}

func TestStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	name := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DELETE FROM replay_state WHERE name = $1`, name)
	})

	if _, found, err := store.LoadState(ctx, name); err != nil || found {
		t.Fatalf("load missing state: found=%v err=%v", found, err)
	}

	state := model.ReplayState{
		LastLine: 4,
		Pool: model.PoolSnapshot{
			Seq:         2,
			AssetA:      "0x00000000000000000000000000000000000000aa",
			AssetB:      "0x00000000000000000000000000000000000000bb",
			ReserveA:    "110",
			ReserveB:    "364",
			TotalShares: "200",
		},
	}
	if err := store.SaveState(ctx, name, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	state.LastLine = 8
	state.Pool.Seq = 3
	if err := store.SaveState(ctx, name, state); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, found, err := store.LoadState(ctx, name)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got.LastLine != 8 || got.Pool.Seq != 3 || got.Pool.ReserveB != "364" {
		t.Fatalf("unexpected state: %+v", got)
	}

	if err := store.SaveState(ctx, "", state); err == nil {
		t.Fatalf("expected error for empty state name")
	}
}
