package model

import (
	"encoding/json"
	"strings"
)

// Operation kinds accepted by the replay stream.
const (
	OpFund            = "fund"
	OpApprove         = "approve"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpSwap            = "swap"
)

// Operation is one line of a replay stream. Amounts are decimal strings and
// addresses are hex; fields not used by Op are left empty.
type Operation struct {
	Op        string `json:"op"`
	Timestamp uint64 `json:"timestamp"`
	Deadline  uint64 `json:"deadline,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	// fund / approve
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount,omitempty"`

	// add_liquidity
	AssetA     string `json:"asset_a,omitempty"`
	AssetB     string `json:"asset_b,omitempty"`
	AmountA    string `json:"amount_a,omitempty"`
	AmountB    string `json:"amount_b,omitempty"`
	AmountAMin string `json:"amount_a_min,omitempty"`
	AmountBMin string `json:"amount_b_min,omitempty"`

	// remove_liquidity
	Shares string `json:"shares,omitempty"`

	// swap
	AssetIn      string `json:"asset_in,omitempty"`
	AssetOut     string `json:"asset_out,omitempty"`
	AmountIn     string `json:"amount_in,omitempty"`
	AmountOutMin string `json:"amount_out_min,omitempty"`
}

// UnmarshalJSON decodes an Operation and normalises the op name.
func (o *Operation) UnmarshalJSON(data []byte) error {
	type Alias Operation
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Op = strings.ToLower(strings.TrimSpace(a.Op))
	*o = Operation(a)
	return nil
}
