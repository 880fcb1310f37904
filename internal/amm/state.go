package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/model"
)

// State is a consistent copy of the pool record.
type State struct {
	AssetA      common.Address
	AssetB      common.Address
	ReserveA    *big.Int
	ReserveB    *big.Int
	TotalShares *big.Int
}

// Product returns ReserveA * ReserveB.
func (s State) Product() *big.Int {
	return new(big.Int).Mul(s.ReserveA, s.ReserveB)
}

// Empty reports whether the pool holds nothing.
func (s State) Empty() bool {
	return s.TotalShares.Sign() == 0
}

// Snapshot converts the state to its JSON record.
func (s State) Snapshot() model.PoolSnapshot {
	return model.PoolSnapshot{
		AssetA:      s.AssetA.Hex(),
		AssetB:      s.AssetB.Hex(),
		ReserveA:    s.ReserveA.String(),
		ReserveB:    s.ReserveB.String(),
		TotalShares: s.TotalShares.String(),
	}
}

// CheckInvariants verifies that no quantity is negative and that the pool is
// either fully empty or fully funded.
func CheckInvariants(s State) error {
	if s.ReserveA == nil || s.ReserveB == nil || s.TotalShares == nil {
		return fmt.Errorf("%w: nil quantity", ErrInvariantViolated)
	}
	if s.ReserveA.Sign() < 0 || s.ReserveB.Sign() < 0 || s.TotalShares.Sign() < 0 {
		return fmt.Errorf("%w: negative quantity (reserve a %s, reserve b %s, shares %s)",
			ErrInvariantViolated, s.ReserveA, s.ReserveB, s.TotalShares)
	}
	zeroA := s.ReserveA.Sign() == 0
	zeroB := s.ReserveB.Sign() == 0
	zeroShares := s.TotalShares.Sign() == 0
	if zeroA != zeroB || zeroA != zeroShares {
		return fmt.Errorf("%w: partially funded (reserve a %s, reserve b %s, shares %s)",
			ErrInvariantViolated, s.ReserveA, s.ReserveB, s.TotalShares)
	}
	return nil
}

// StateFromSnapshot parses a snapshot record back into a State.
func StateFromSnapshot(snap model.PoolSnapshot) (State, error) {
	if !common.IsHexAddress(snap.AssetA) || !common.IsHexAddress(snap.AssetB) {
		return State{}, fmt.Errorf("invalid snapshot assets: %s/%s", snap.AssetA, snap.AssetB)
	}
	reserveA, err := parseQuantity(snap.ReserveA)
	if err != nil {
		return State{}, fmt.Errorf("reserve a: %w", err)
	}
	reserveB, err := parseQuantity(snap.ReserveB)
	if err != nil {
		return State{}, fmt.Errorf("reserve b: %w", err)
	}
	totalShares, err := parseQuantity(snap.TotalShares)
	if err != nil {
		return State{}, fmt.Errorf("total shares: %w", err)
	}
	return State{
		AssetA:      common.HexToAddress(snap.AssetA),
		AssetB:      common.HexToAddress(snap.AssetB),
		ReserveA:    reserveA,
		ReserveB:    reserveB,
		TotalShares: totalShares,
	}, nil
}

func parseQuantity(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
