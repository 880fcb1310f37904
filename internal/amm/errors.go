package amm

import "errors"

var (
	// ErrDeadlineExpired is returned when an operation is submitted after its deadline.
	ErrDeadlineExpired = errors.New("deadline expired")
	// ErrInvalidAssetPair is returned when the supplied assets are not exactly the pool pair.
	ErrInvalidAssetPair = errors.New("invalid asset pair")
	// ErrNonPositiveAmount is returned when an amount that must be positive is nil, zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrSlippageExceeded is returned when an actual amount is below the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInsufficientShares is returned when a redemption exceeds the holder's share balance.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInsufficientReserves is returned when an operation would drive a reserve negative or to zero.
	ErrInsufficientReserves = errors.New("insufficient reserves")
	// ErrEmptyPoolPriceUndefined is returned by price quotes against an unfunded pool.
	ErrEmptyPoolPriceUndefined = errors.New("price undefined for empty pool")
	// ErrInsufficientLiquidityMinted is returned when a deposit would mint zero shares.
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	// ErrLedgerRejected wraps a failure reported by an asset or share ledger.
	ErrLedgerRejected = errors.New("ledger rejected")
	// ErrCompensationFailed is returned when a ledger call could not be reversed after an abort.
	ErrCompensationFailed = errors.New("compensation failed")
	// ErrInvariantViolated is returned when a staged state fails the pool invariants.
	ErrInvariantViolated = errors.New("pool invariant violated")
)

// ErrorKind returns a short stable label for err, suitable for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCompensationFailed):
		return "compensation_failed"
	case errors.Is(err, ErrLedgerRejected):
		return "ledger_rejected"
	case errors.Is(err, ErrInvariantViolated):
		return "invariant_violated"
	case errors.Is(err, ErrDeadlineExpired):
		return "deadline_expired"
	case errors.Is(err, ErrInvalidAssetPair):
		return "invalid_asset_pair"
	case errors.Is(err, ErrNonPositiveAmount):
		return "non_positive_amount"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInsufficientReserves):
		return "insufficient_reserves"
	case errors.Is(err, ErrEmptyPoolPriceUndefined):
		return "empty_pool"
	case errors.Is(err, ErrInsufficientLiquidityMinted):
		return "insufficient_liquidity_minted"
	default:
		return "error"
	}
}
