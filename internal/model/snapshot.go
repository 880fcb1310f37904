package model

import "time"

// PoolSnapshot is the persisted form of a pool record. Seq is the number of
// events the pool has emitted.
type PoolSnapshot struct {
	Seq         uint64 `json:"seq"`
	AssetA      string `json:"asset_a"`
	AssetB      string `json:"asset_b"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	TotalShares string `json:"total_shares"`
}

// AssetLedgerSnapshot maps asset -> account -> amount.
type AssetLedgerSnapshot struct {
	Balances   map[string]map[string]string `json:"balances"`
	Allowances map[string]map[string]string `json:"allowances"`
	Custody    map[string]string            `json:"custody"`
}

// ShareLedgerSnapshot holds share balances per account.
type ShareLedgerSnapshot struct {
	Balances    map[string]string `json:"balances"`
	TotalSupply string            `json:"total_supply"`
}

// LedgerSnapshot bundles both ledgers.
type LedgerSnapshot struct {
	Assets AssetLedgerSnapshot `json:"assets"`
	Shares ShareLedgerSnapshot `json:"shares"`
}

// ReplayState is what a replay run needs to resume.
type ReplayState struct {
	LastLine  uint64         `json:"last_line"`
	Pool      PoolSnapshot   `json:"pool"`
	Ledger    LedgerSnapshot `json:"ledger"`
	UpdatedAt time.Time      `json:"updated_at"`
}
