package model

// PoolEvent is a committed pool operation together with the pool state it left behind.
type PoolEvent struct {
	Seq         uint64      `json:"seq"`
	AssetA      string      `json:"asset_a"`
	AssetB      string      `json:"asset_b"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Sender      string      `json:"sender"`
	Recipient   string      `json:"recipient"`
	Decoded     interface{} `json:"decoded"`
	ReserveA    string      `json:"reserve_a"`
	ReserveB    string      `json:"reserve_b"`
	TotalShares string      `json:"total_shares"`
}
