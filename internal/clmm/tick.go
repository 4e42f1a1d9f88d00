package clmm

import (
	"math/big"

	"positionscope/internal/model"
)

// Valid tick domain shared by both protocol families.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Q96 is the fixed-point scaling factor (2^96) for sqrt prices.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

var (
	one128      = new(big.Int).Lsh(big.NewInt(1), 128)
	two32       = new(big.Int).Lsh(big.NewInt(1), 32)
	maxUint256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	tickFactors = mustFactors([]string{
		"fffcb933bd6fad37aa2d162d1a594001",
		"fff97272373d413259a46990580e213a",
		"fff2e50f5f656932ef12357cf3c7fdcc",
		"ffe5caca7e10e4e61c3624eaa0941cd0",
		"ffcb9843d60f6159c9db58835c926644",
		"ff973b41fa98c081472e6896dfb254c0",
		"ff2ea16466c96a3843ec78b326b52861",
		"fe5dee046a99a2a811c461f1969c3053",
		"fcbe86c7900a88aedcffc83b479aa3a4",
		"f987a7253ac413176f2b074cf7815e54",
		"f3392b0822b70005940c7a398e4b70f3",
		"e7159475a2c29b7443b29c7fa6e889d9",
		"d097f3bdfd2022b8845ad8f792aa5825",
		"a9f746462d870fdf8a65dc1f90e061e5",
		"70d869a156d2a1b890bb3df62baf32f7",
		"31be135f97d08fd981231505542fcfa6",
		"9aa508b5b7a84e1c677de54f3e99bc9",
		"5d6af8dedb81196699c329225ee604",
		"2216e584f5fa1ea926041bedfe98",
		"48a170391f7dc42444e8fa2",
	})
)

func mustFactors(hexes []string) []*big.Int {
	out := make([]*big.Int, len(hexes))
	for i, h := range hexes {
		v, ok := new(big.Int).SetString(h, 16)
		if !ok {
			panic("invalid tick factor: " + h)
		}
		out[i] = v
	}
	return out
}

// TickToSqrtPriceX96 returns sqrt(1.0001^tick) in Q64.96 fixed point.
//
// It runs the canonical tick-math bit ladder over precomputed Q128.128
// factors so results match on-chain arithmetic to the unit, then narrows to
// Q96 with the same round-up rule the reference implementation applies when
// narrowing. Narrowing any further would merge adjacent ticks near the lower
// end of the domain; at 96 fractional bits every tick keeps a distinct value,
// so the function is strictly increasing over the valid domain and
// TickToSqrtPriceX96(0) is exactly 2^96.
func TickToSqrtPriceX96(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, &model.RangeError{Tick: tick}
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(big.Int).Set(one128)
	if absTick&1 != 0 {
		ratio.Set(tickFactors[0])
	}
	for bit := uint(1); bit < 20; bit++ {
		if absTick&(1<<bit) != 0 {
			ratio.Mul(ratio, tickFactors[bit])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(new(big.Int).Set(maxUint256), ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the inverse relation with
	// sqrt-price-to-tick stays consistent.
	rem := new(big.Int)
	sqrt, rem := new(big.Int).QuoRem(ratio, two32, rem)
	if rem.Sign() != 0 {
		sqrt.Add(sqrt, big.NewInt(1))
	}
	return sqrt, nil
}

// SqrtPriceX64ToX96 widens a Q64.64 sqrt price, the native on-chain format
// of fixed-layout pools, to Q64.96. The shift is exact.
func SqrtPriceX64ToX96(sqrtPriceX64 *big.Int) (*big.Int, error) {
	if sqrtPriceX64 == nil || sqrtPriceX64.Sign() <= 0 {
		return nil, &model.MathError{Reason: "sqrt price must be positive"}
	}
	return new(big.Int).Lsh(sqrtPriceX64, 32), nil
}

// TickInRange reports whether current falls within [lower, upper).
func TickInRange(current, lower, upper int32) bool {
	return lower <= current && current < upper
}
