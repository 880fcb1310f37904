package amm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammPool/internal/model"
)

// AssetLedger moves fungible assets between external accounts and pool custody.
type AssetLedger interface {
	// TransferIn moves amount of asset from an external account into pool custody.
	TransferIn(ctx context.Context, asset, from common.Address, amount *big.Int) error
	// TransferOut moves amount of asset from pool custody to an external account.
	TransferOut(ctx context.Context, asset, to common.Address, amount *big.Int) error
}

// ShareLedger tracks liquidity-share balances.
type ShareLedger interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, from common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// Journal receives an event for every committed operation.
type Journal interface {
	Record(ctx context.Context, event model.PoolEvent) error
}
