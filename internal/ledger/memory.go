// Package ledger provides in-memory asset and share ledgers for hosting a pool
// outside a chain.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/model"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientCustody   = errors.New("insufficient custody")
	ErrNegativeAmount        = errors.New("negative amount")
)

// AssetLedger holds external balances, the allowances each owner has granted
// to the pool, and the pool's own custody, per asset.
type AssetLedger struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	custody    map[common.Address]*big.Int
	enforce    bool
}

// AssetOption customises an AssetLedger.
type AssetOption func(*AssetLedger)

// WithoutAllowances lets TransferIn pull any funded balance without a prior Approve.
func WithoutAllowances() AssetOption {
	return func(l *AssetLedger) { l.enforce = false }
}

func NewAssetLedger(opts ...AssetOption) *AssetLedger {
	l := &AssetLedger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		custody:    make(map[common.Address]*big.Int),
		enforce:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Credit adds amount of asset to account's external balance.
func (l *AssetLedger) Credit(asset, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit %s: %w", asset.Hex(), ErrNegativeAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	add(entry(l.balances, asset, account), amount)
	return nil
}

// Approve sets the amount of asset the pool may pull from owner.
func (l *AssetLedger) Approve(asset, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("approve %s: %w", asset.Hex(), ErrNegativeAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry(l.allowances, asset, owner).Set(amount)
	return nil
}

func (l *AssetLedger) TransferIn(_ context.Context, asset, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer in %s: %w", asset.Hex(), ErrNegativeAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := entry(l.balances, asset, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("transfer in %s from %s: %w (have %s, need %s)", asset.Hex(), from.Hex(), ErrInsufficientBalance, balance, amount)
	}
	if l.enforce {
		allowance := entry(l.allowances, asset, from)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("transfer in %s from %s: %w (have %s, need %s)", asset.Hex(), from.Hex(), ErrInsufficientAllowance, allowance, amount)
		}
		allowance.Sub(allowance, amount)
	}
	balance.Sub(balance, amount)
	add(l.custodyOf(asset), amount)
	return nil
}

func (l *AssetLedger) TransferOut(_ context.Context, asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer out %s: %w", asset.Hex(), ErrNegativeAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	custody := l.custodyOf(asset)
	if custody.Cmp(amount) < 0 {
		return fmt.Errorf("transfer out %s to %s: %w (have %s, need %s)", asset.Hex(), to.Hex(), ErrInsufficientCustody, custody, amount)
	}
	custody.Sub(custody, amount)
	add(entry(l.balances, asset, to), amount)
	return nil
}

// BalanceOf returns account's external balance of asset.
func (l *AssetLedger) BalanceOf(asset, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(entry(l.balances, asset, account))
}

// Allowance returns what the pool may still pull from owner.
func (l *AssetLedger) Allowance(asset, owner common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(entry(l.allowances, asset, owner))
}

// Custody returns the amount of asset held by the pool.
func (l *AssetLedger) Custody(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.custodyOf(asset))
}

func (l *AssetLedger) custodyOf(asset common.Address) *big.Int {
	v, ok := l.custody[asset]
	if !ok {
		v = new(big.Int)
		l.custody[asset] = v
	}
	return v
}

// Snapshot returns a serialisable copy of the ledger.
func (l *AssetLedger) Snapshot() model.AssetLedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := model.AssetLedgerSnapshot{
		Balances:   encodeNested(l.balances),
		Allowances: encodeNested(l.allowances),
		Custody:    encodeFlat(l.custody),
	}
	return snap
}

// Restore replaces the ledger contents with snap.
func (l *AssetLedger) Restore(snap model.AssetLedgerSnapshot) error {
	balances, err := decodeNested(snap.Balances)
	if err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}
	allowances, err := decodeNested(snap.Allowances)
	if err != nil {
		return fmt.Errorf("restore allowances: %w", err)
	}
	custody, err := decodeFlat(snap.Custody)
	if err != nil {
		return fmt.Errorf("restore custody: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = balances
	l.allowances = allowances
	l.custody = custody
	return nil
}

// ShareLedger tracks liquidity-share balances and total supply.
type ShareLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	supply   *big.Int
}

func NewShareLedger() *ShareLedger {
	return &ShareLedger{
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

func (l *ShareLedger) Mint(_ context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("mint: %w", ErrNegativeAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	add(l.balanceOf(to), amount)
	add(l.supply, amount)
	return nil
}

func (l *ShareLedger) Burn(_ context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("burn: %w", ErrNegativeAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("burn from %s: %w (have %s, need %s)", from.Hex(), ErrInsufficientBalance, balance, amount)
	}
	balance.Sub(balance, amount)
	l.supply.Sub(l.supply, amount)
	return nil
}

func (l *ShareLedger) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceOf(account)), nil
}

func (l *ShareLedger) TotalSupply(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply), nil
}

func (l *ShareLedger) balanceOf(account common.Address) *big.Int {
	v, ok := l.balances[account]
	if !ok {
		v = new(big.Int)
		l.balances[account] = v
	}
	return v
}

// Snapshot returns a serialisable copy of the ledger.
func (l *ShareLedger) Snapshot() model.ShareLedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.ShareLedgerSnapshot{
		Balances:    encodeFlat(l.balances),
		TotalSupply: l.supply.String(),
	}
}

// Restore replaces the ledger contents with snap. The balances must sum to the
// recorded total supply.
func (l *ShareLedger) Restore(snap model.ShareLedgerSnapshot) error {
	balances, err := decodeFlat(snap.Balances)
	if err != nil {
		return fmt.Errorf("restore share balances: %w", err)
	}
	supply, ok := new(big.Int).SetString(orZero(snap.TotalSupply), 10)
	if !ok {
		return fmt.Errorf("restore share supply: invalid int: %s", snap.TotalSupply)
	}
	sum := new(big.Int)
	for _, v := range balances {
		sum.Add(sum, v)
	}
	if sum.Cmp(supply) != 0 {
		return fmt.Errorf("restore shares: balances sum to %s, supply is %s", sum, supply)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = balances
	l.supply = supply
	return nil
}

func entry(m map[common.Address]map[common.Address]*big.Int, asset, account common.Address) *big.Int {
	inner, ok := m[asset]
	if !ok {
		inner = make(map[common.Address]*big.Int)
		m[asset] = inner
	}
	v, ok := inner[account]
	if !ok {
		v = new(big.Int)
		inner[account] = v
	}
	return v
}

func add(dst, amount *big.Int) {
	dst.Add(dst, amount)
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func encodeFlat(m map[common.Address]*big.Int) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v.Sign() == 0 {
			continue
		}
		out[k.Hex()] = v.String()
	}
	return out
}

func encodeNested(m map[common.Address]map[common.Address]*big.Int) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for k, inner := range m {
		enc := encodeFlat(inner)
		if len(enc) == 0 {
			continue
		}
		out[k.Hex()] = enc
	}
	return out
}

func decodeFlat(m map[string]string) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		if !common.IsHexAddress(k) {
			return nil, fmt.Errorf("invalid address: %s", k)
		}
		amount, ok := new(big.Int).SetString(v, 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("invalid amount for %s: %s", k, v)
		}
		out[common.HexToAddress(k)] = amount
	}
	return out, nil
}

func decodeNested(m map[string]map[string]string) (map[common.Address]map[common.Address]*big.Int, error) {
	out := make(map[common.Address]map[common.Address]*big.Int, len(m))
	for k, inner := range m {
		if !common.IsHexAddress(k) {
			return nil, fmt.Errorf("invalid asset: %s", k)
		}
		dec, err := decodeFlat(inner)
		if err != nil {
			return nil, err
		}
		out[common.HexToAddress(k)] = dec
	}
	return out, nil
}
