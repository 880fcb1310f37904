package replay

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ammPool/internal/amm"
	"ammPool/internal/model"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input, field string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", field, input)
	}
	return common.HexToAddress(input), nil
}

// ParseAmount reads a decimal or 0x-prefixed hex integer. An empty string is
// nil so optional minimums stay unset.
func ParseAmount(input, field string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		v, err := hexutil.DecodeBig(input)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, input)
	}
	return v, nil
}

func requiredAmount(input, field string) (*big.Int, error) {
	v, err := ParseAmount(input, field)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	return v, nil
}

// parties resolves sender and recipient; recipient defaults to sender.
func parties(op model.Operation) (common.Address, common.Address, error) {
	sender, err := ParseAddress(op.Sender, "sender")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if strings.TrimSpace(op.Recipient) == "" {
		return sender, sender, nil
	}
	recipient, err := ParseAddress(op.Recipient, "recipient")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return sender, recipient, nil
}

// deadline defaults to the operation's own timestamp.
func deadline(op model.Operation) uint64 {
	if op.Deadline == 0 {
		return op.Timestamp
	}
	return op.Deadline
}

func addLiquidityParams(op model.Operation, pool *amm.Pool) (amm.AddLiquidityParams, error) {
	sender, recipient, err := parties(op)
	if err != nil {
		return amm.AddLiquidityParams{}, err
	}
	assetA, assetB := pool.AssetA(), pool.AssetB()
	if op.AssetA != "" || op.AssetB != "" {
		if assetA, err = ParseAddress(op.AssetA, "asset_a"); err != nil {
			return amm.AddLiquidityParams{}, err
		}
		if assetB, err = ParseAddress(op.AssetB, "asset_b"); err != nil {
			return amm.AddLiquidityParams{}, err
		}
	}
	params := amm.AddLiquidityParams{
		AssetA:    assetA,
		AssetB:    assetB,
		Sender:    sender,
		Recipient: recipient,
		Deadline:  deadline(op),
	}
	if params.AmountADesired, err = requiredAmount(op.AmountA, "amount_a"); err != nil {
		return amm.AddLiquidityParams{}, err
	}
	if params.AmountBDesired, err = requiredAmount(op.AmountB, "amount_b"); err != nil {
		return amm.AddLiquidityParams{}, err
	}
	if params.AmountAMin, err = ParseAmount(op.AmountAMin, "amount_a_min"); err != nil {
		return amm.AddLiquidityParams{}, err
	}
	if params.AmountBMin, err = ParseAmount(op.AmountBMin, "amount_b_min"); err != nil {
		return amm.AddLiquidityParams{}, err
	}
	return params, nil
}

func removeLiquidityParams(op model.Operation) (amm.RemoveLiquidityParams, error) {
	sender, recipient, err := parties(op)
	if err != nil {
		return amm.RemoveLiquidityParams{}, err
	}
	params := amm.RemoveLiquidityParams{
		Sender:    sender,
		Recipient: recipient,
		Deadline:  deadline(op),
	}
	if params.Shares, err = requiredAmount(op.Shares, "shares"); err != nil {
		return amm.RemoveLiquidityParams{}, err
	}
	if params.AmountAMin, err = ParseAmount(op.AmountAMin, "amount_a_min"); err != nil {
		return amm.RemoveLiquidityParams{}, err
	}
	if params.AmountBMin, err = ParseAmount(op.AmountBMin, "amount_b_min"); err != nil {
		return amm.RemoveLiquidityParams{}, err
	}
	return params, nil
}

func swapParams(op model.Operation) (amm.SwapParams, error) {
	sender, recipient, err := parties(op)
	if err != nil {
		return amm.SwapParams{}, err
	}
	params := amm.SwapParams{
		Sender:    sender,
		Recipient: recipient,
		Deadline:  deadline(op),
	}
	if params.AssetIn, err = ParseAddress(op.AssetIn, "asset_in"); err != nil {
		return amm.SwapParams{}, err
	}
	if params.AssetOut, err = ParseAddress(op.AssetOut, "asset_out"); err != nil {
		return amm.SwapParams{}, err
	}
	if params.AmountIn, err = requiredAmount(op.AmountIn, "amount_in"); err != nil {
		return amm.SwapParams{}, err
	}
	if params.AmountOutMin, err = ParseAmount(op.AmountOutMin, "amount_out_min"); err != nil {
		return amm.SwapParams{}, err
	}
	return params, nil
}
