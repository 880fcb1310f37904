package amm

import (
	"fmt"
	"math/big"
)

// PricePrecision is the number of decimal places carried by QuotePrice.
const PricePrecision = 18

var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(PricePrecision), nil)

// QuoteSwapOutput returns the output of swapping amountIn against the given
// reserves under the no-fee constant-product rule:
//
//	amountOut = amountIn * reserveOut / (reserveIn + amountIn)
//
// The division truncates, which keeps the reserve product non-decreasing.
func QuoteSwapOutput(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !isPositive(amountIn) {
		return nil, fmt.Errorf("%w: amount in", ErrNonPositiveAmount)
	}
	if !isPositive(reserveIn) || !isPositive(reserveOut) {
		return nil, fmt.Errorf("%w: reserves must be positive", ErrNonPositiveAmount)
	}
	return swapOutput(amountIn, reserveIn, reserveOut), nil
}

// QuoteSwapInput returns the smallest input whose swap output is at least
// amountOut. amountOut must be strictly below reserveOut.
func QuoteSwapInput(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !isPositive(amountOut) {
		return nil, fmt.Errorf("%w: amount out", ErrNonPositiveAmount)
	}
	if !isPositive(reserveIn) || !isPositive(reserveOut) {
		return nil, fmt.Errorf("%w: reserves must be positive", ErrNonPositiveAmount)
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amount out (%s) is >= reserve out (%s)", ErrInsufficientReserves, amountOut, reserveOut)
	}

	// amountIn = ceil(reserveIn * amountOut / (reserveOut - amountOut))
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	return ceilMulDiv(reserveIn, amountOut, denominator), nil
}

func swapOutput(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	numerator := new(big.Int).Mul(amountIn, reserveOut)
	denominator := new(big.Int).Add(reserveIn, amountIn)
	return numerator.Div(numerator, denominator)
}

// mulDiv returns floor(a * b / c) for non-negative a, b and positive c.
func mulDiv(a, b, c *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, c)
}

// ceilMulDiv returns ceil(a * b / c) for non-negative a, b and positive c.
func ceilMulDiv(a, b, c *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).QuoRem(product, c, new(big.Int))
	if remainder.Sign() > 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

// initialShares is the integer square root of a * b.
func initialShares(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Sqrt(product)
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// minimum normalises an optional lower bound: nil means zero, negative is rejected.
func minimum(v *big.Int, name string) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be non-negative, got %s", ErrNonPositiveAmount, name, v)
	}
	return v, nil
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
