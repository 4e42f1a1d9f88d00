package clmm

import (
	"math/big"

	"github.com/shopspring/decimal"

	"positionscope/internal/model"
)

// priceScale controls the decimal precision used when converting fixed-point
// sqrt prices into human-readable quotes.
const priceScale = 24

var q96Decimal = decimal.NewFromBigInt(Q96, 0)

// PriceFromSqrtPriceX96 converts a Q64.96 sqrt price into the decimal price
// of token0 expressed in token1 units, adjusted for token decimals.
func PriceFromSqrtPriceX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, &model.MathError{Reason: "sqrt price must be positive"}
	}
	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96Decimal, priceScale)
	ratio := sqrt.Mul(sqrt)

	// price = ratio * 10^(decimals0-decimals1)
	adjust := decimal.New(1, int32(decimals0)-int32(decimals1))
	return ratio.Mul(adjust), nil
}

// PriceFromTick converts a tick directly into a decimal-adjusted price.
func PriceFromTick(tick int32, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	sqrt, err := TickToSqrtPriceX96(tick)
	if err != nil {
		return decimal.Zero, err
	}
	return PriceFromSqrtPriceX96(sqrt, decimals0, decimals1)
}
