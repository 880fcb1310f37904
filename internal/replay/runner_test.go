package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/model"
	"ammPool/internal/storage"
)

const (
	tokenA = "0x00000000000000000000000000000000000000aa"
	tokenB = "0x00000000000000000000000000000000000000bb"
	alice  = "0x0000000000000000000000000000000000000001"
	bob    = "0x0000000000000000000000000000000000000002"
)

var scenario = []string{
	`{"op":"fund","timestamp":100,"asset":"` + tokenA + `","sender":"` + alice + `","amount":"1000"}`,
	`{"op":"fund","timestamp":100,"asset":"` + tokenB + `","sender":"` + alice + `","amount":"1000"}`,
	`{"op":"fund","timestamp":100,"asset":"` + tokenA + `","sender":"` + bob + `","amount":"0x64"}`,
	`{"op":"add_liquidity","timestamp":101,"sender":"` + alice + `","amount_a":"100","amount_b":"400"}`,
	`{"op":"swap","timestamp":102,"sender":"` + bob + `","asset_in":"` + tokenA + `","asset_out":"` + tokenB + `","amount_in":"10","amount_out_min":"37"}`,
	`{"op":"swap","timestamp":103,"sender":"` + bob + `","asset_in":"` + tokenA + `","asset_out":"` + tokenB + `","amount_in":"10","amount_out_min":"36"}`,
	``,
	`{"op":"remove_liquidity","timestamp":104,"deadline":200,"sender":"` + alice + `","shares":"200"}`,
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func readEvents(t *testing.T, path string) []model.PoolEvent {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer file.Close()
	var events []model.PoolEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev model.PoolEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func newRunner(dir string, batch int) *Runner {
	return NewRunner(Config{
		AssetA:     common.HexToAddress(tokenA),
		AssetB:     common.HexToAddress(tokenB),
		BatchSize:  batch,
		StateStore: &FileStateStore{Path: filepath.Join(dir, "state.json")},
	}, storage.NewJsonlStorage(filepath.Join(dir, "events.jsonl")), nil, nil)
}

func TestRunnerReplaysScenario(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ops.jsonl")
	writeLines(t, input, scenario)

	summary, err := newRunner(dir, 2).Run(context.Background(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Total != 7 || summary.Applied != 6 || summary.Rejected != 1 || summary.Events != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	swap := events[1]
	if swap.EventName != model.EventSwap || swap.ReserveA != "110" || swap.ReserveB != "364" || swap.Timestamp != 103 {
		t.Fatalf("unexpected swap event: %+v", swap)
	}
	if events[2].TotalShares != "0" {
		t.Fatalf("pool should be empty after remove, got %+v", events[2])
	}

	state, ok, err := (&FileStateStore{Path: filepath.Join(dir, "state.json")}).Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load state: ok=%v err=%v", ok, err)
	}
	if state.LastLine != 8 || state.Pool.Seq != 3 {
		t.Fatalf("unexpected state: last line %d seq %d", state.LastLine, state.Pool.Seq)
	}
	if got := state.Ledger.Assets.Balances[common.HexToAddress(tokenB).Hex()][common.HexToAddress(bob).Hex()]; got != "36" {
		t.Fatalf("bob token b = %q, want 36", got)
	}
}

func TestRunnerResumesFromState(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ops.jsonl")
	writeLines(t, input, scenario[:5])

	first, err := newRunner(dir, 100).Run(context.Background(), input)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Applied != 4 || first.Rejected != 1 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	writeLines(t, input, scenario)
	runner := newRunner(dir, 100)
	second, err := runner.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Skipped != 5 || second.Applied != 2 || second.Rejected != 0 {
		t.Fatalf("unexpected second summary: %+v", second)
	}

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	if len(events) != 3 {
		t.Fatalf("expected 3 events across runs, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
	}
	if state := runner.Pool().State(); !state.Empty() {
		t.Fatalf("pool should be empty, got %+v", state)
	}
}

func TestRunnerFailsOnMalformedLine(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ops.jsonl")
	writeLines(t, input, []string{
		scenario[0],
		`{"op":"swap","timestamp":1,"sender":"` + bob + `","asset_in":"nope","asset_out":"` + tokenB + `","amount_in":"10"}`,
	})

	_, err := newRunner(dir, 10).Run(context.Background(), input)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}

	writeLines(t, input, []string{`{"op":"mint","timestamp":1}`})
	if _, err := newRunner(t.TempDir(), 10).Run(context.Background(), input); err == nil {
		t.Fatalf("expected unknown op error")
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"42":   "42",
		"0x2a": "42",
		" 7 ":  "7",
	}
	for input, want := range cases {
		got, err := ParseAmount(input, "amount")
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got.String() != want {
			t.Fatalf("parse %q = %s, want %s", input, got, want)
		}
	}
	if v, err := ParseAmount("", "amount"); err != nil || v != nil {
		t.Fatalf("empty amount should be nil, got %v %v", v, err)
	}
	if _, err := ParseAmount("1.5", "amount"); err == nil {
		t.Fatalf("expected error for fractional amount")
	}
}
