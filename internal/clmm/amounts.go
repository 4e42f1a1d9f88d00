package clmm

import (
	"math/big"

	"positionscope/internal/model"
)

// AmountsFromLiquidity reconstructs the raw token reserves a position holds
// for the given liquidity, current pool sqrt price (Q64.96) and tick range.
//
// Three branches of the canonical formulas:
//
//	price at or below range: amount0 = L*(sb-sa)*2^96/(sa*sb), amount1 = 0
//	price at or above range: amount0 = 0, amount1 = L*(sb-sa)/2^96
//	price inside range:      amount0 = L*(sb-sp)*2^96/(sp*sb),
//	                         amount1 = L*(sp-sa)/2^96
//
// Invalid inputs return MathError/RangeError; failures are never replaced
// with placeholder amounts.
func AmountsFromLiquidity(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (*big.Int, *big.Int, error) {
	if tickLower >= tickUpper {
		return nil, nil, &model.MathError{Reason: "tick lower must be below tick upper"}
	}
	if liquidity == nil || liquidity.Sign() < 0 {
		return nil, nil, &model.MathError{Reason: "liquidity must be non-negative"}
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, nil, &model.MathError{Reason: "sqrt price must be positive"}
	}

	sa, err := TickToSqrtPriceX96(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sb, err := TickToSqrtPriceX96(tickUpper)
	if err != nil {
		return nil, nil, err
	}
	sp := sqrtPriceX96

	amount0 := new(big.Int)
	amount1 := new(big.Int)

	switch {
	case sp.Cmp(sa) <= 0:
		amount0 = amount0FromRange(liquidity, sa, sb)
	case sp.Cmp(sb) >= 0:
		amount1 = amount1FromRange(liquidity, sa, sb)
	default:
		amount0 = amount0FromRange(liquidity, sp, sb)
		amount1 = amount1FromRange(liquidity, sa, sp)
	}

	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, nil, &model.MathError{Reason: "negative reserve amount"}
	}
	return amount0, amount1, nil
}

// amount0FromRange computes L*(sb-sa)*2^96/(sa*sb) exactly.
func amount0FromRange(liquidity, sa, sb *big.Int) *big.Int {
	num := new(big.Int).Sub(sb, sa)
	num.Mul(num, liquidity)
	num.Lsh(num, 96)
	den := new(big.Int).Mul(sa, sb)
	return num.Div(num, den)
}

// amount1FromRange computes L*(sb-sa)/2^96 exactly.
func amount1FromRange(liquidity, sa, sb *big.Int) *big.Int {
	num := new(big.Int).Sub(sb, sa)
	num.Mul(num, liquidity)
	return num.Rsh(num, 96)
}
