package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/model"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestAssetLedgerTransferInRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	l := NewAssetLedger()
	if err := l.Credit(tokenA, alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	err := l.TransferIn(ctx, tokenA, alice, big.NewInt(40))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	if err := l.Approve(tokenA, alice, big.NewInt(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.TransferIn(ctx, tokenA, alice, big.NewInt(40)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if got := l.BalanceOf(tokenA, alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", got)
	}
	if got := l.Allowance(tokenA, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("allowance = %s, want 10", got)
	}
	if got := l.Custody(tokenA); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("custody = %s, want 40", got)
	}
}

func TestAssetLedgerTransferInInsufficientBalance(t *testing.T) {
	l := NewAssetLedger(WithoutAllowances())
	if err := l.Credit(tokenA, alice, big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := l.TransferIn(context.Background(), tokenA, alice, big.NewInt(6))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.BalanceOf(tokenA, alice); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("balance changed to %s", got)
	}
}

func TestAssetLedgerTransferOutRequiresCustody(t *testing.T) {
	ctx := context.Background()
	l := NewAssetLedger(WithoutAllowances())
	if err := l.TransferOut(ctx, tokenA, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientCustody) {
		t.Fatalf("expected ErrInsufficientCustody, got %v", err)
	}

	if err := l.Credit(tokenA, alice, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.TransferIn(ctx, tokenA, alice, big.NewInt(10)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if err := l.TransferOut(ctx, tokenA, bob, big.NewInt(7)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	if got := l.BalanceOf(tokenA, bob); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("bob balance = %s, want 7", got)
	}
	if got := l.Custody(tokenA); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("custody = %s, want 3", got)
	}
}

func TestAssetLedgerSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	l := NewAssetLedger()
	_ = l.Credit(tokenA, alice, big.NewInt(100))
	_ = l.Approve(tokenA, alice, big.NewInt(30))
	if err := l.TransferIn(ctx, tokenA, alice, big.NewInt(20)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}

	snap := l.Snapshot()
	restored := NewAssetLedger()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.BalanceOf(tokenA, alice); got.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("balance = %s, want 80", got)
	}
	if got := restored.Allowance(tokenA, alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("allowance = %s, want 10", got)
	}
	if got := restored.Custody(tokenA); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("custody = %s, want 20", got)
	}
}

func TestShareLedgerMintBurn(t *testing.T) {
	ctx := context.Background()
	l := NewShareLedger()
	if err := l.Mint(ctx, alice, big.NewInt(200)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Burn(ctx, alice, big.NewInt(201)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Burn(ctx, alice, big.NewInt(50)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	balance, _ := l.BalanceOf(ctx, alice)
	supply, _ := l.TotalSupply(ctx)
	if balance.Cmp(big.NewInt(150)) != 0 || supply.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("balance %s supply %s, want 150/150", balance, supply)
	}
}

func TestShareLedgerRestoreRejectsMismatchedSupply(t *testing.T) {
	l := NewShareLedger()
	err := l.Restore(model.ShareLedgerSnapshot{
		Balances:    map[string]string{alice.Hex(): "10"},
		TotalSupply: "11",
	})
	if err == nil {
		t.Fatalf("expected supply mismatch error")
	}
}
