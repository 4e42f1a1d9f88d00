package clmm

import (
	"errors"
	"math/big"
	"testing"

	"positionscope/internal/model"
)

func TestTickZeroIsUnitPrice(t *testing.T) {
	sqrt, err := TickToSqrtPriceX96(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sqrt.Cmp(Q96) != 0 {
		t.Fatalf("tick 0 sqrt price = %s, want %s", sqrt, Q96)
	}
}

func TestTickToSqrtPriceMonotonic(t *testing.T) {
	ticks := []int32{MinTick, -500000, -100000, -887, -2, -1, 0, 1, 2, 887, 100000, 500000, MaxTick}

	var prev *big.Int
	for _, tick := range ticks {
		sqrt, err := TickToSqrtPriceX96(tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if sqrt.Sign() <= 0 {
			t.Fatalf("tick %d: non-positive sqrt price %s", tick, sqrt)
		}
		if prev != nil && sqrt.Cmp(prev) <= 0 {
			t.Fatalf("tick %d: sqrt price %s not greater than previous %s", tick, sqrt, prev)
		}
		prev = sqrt
	}
}

// Deep in the negative domain sqrt prices get tiny; a representation with
// too few fractional bits would round adjacent ticks to the same value.
// Every consecutive tick must map to a strictly larger sqrt price.
func TestTickToSqrtPriceAdjacentTicksDistinct(t *testing.T) {
	windows := [][2]int32{
		{MinTick, MinTick + 1000},
		{-800000, -799900},
		{-700000, -699900},
		{MaxTick - 100, MaxTick},
	}

	for _, w := range windows {
		prev, err := TickToSqrtPriceX96(w[0])
		if err != nil {
			t.Fatalf("tick %d: %v", w[0], err)
		}
		for tick := w[0] + 1; tick <= w[1]; tick++ {
			sqrt, err := TickToSqrtPriceX96(tick)
			if err != nil {
				t.Fatalf("tick %d: %v", tick, err)
			}
			if sqrt.Cmp(prev) <= 0 {
				t.Fatalf("tick %d: sqrt price %s not greater than tick %d's %s", tick, sqrt, tick-1, prev)
			}
			prev = sqrt
		}
	}
}

func TestTickOutOfRange(t *testing.T) {
	for _, tick := range []int32{MinTick - 1, MaxTick + 1, -1000000, 1000000} {
		_, err := TickToSqrtPriceX96(tick)
		var rangeErr *model.RangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("tick %d: expected RangeError, got %v", tick, err)
		}
	}
}

func TestSqrtPriceX64ToX96(t *testing.T) {
	x64 := new(big.Int).Lsh(big.NewInt(1), 64)
	x96, err := SqrtPriceX64ToX96(x64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x96.Cmp(Q96) != 0 {
		t.Fatalf("1.0 X64 -> %s, want %s", x96, Q96)
	}

	if _, err := SqrtPriceX64ToX96(big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero sqrt price")
	}
	if _, err := SqrtPriceX64ToX96(nil); err == nil {
		t.Fatalf("expected error for nil sqrt price")
	}
}

func TestTickInRange(t *testing.T) {
	cases := []struct {
		current, lower, upper int32
		want                  bool
	}{
		{0, -100, 100, true},
		{-100, -100, 100, true},
		{100, -100, 100, false},
		{-101, -100, 100, false},
		{200, -100, 100, false},
	}
	for _, tc := range cases {
		if got := TickInRange(tc.current, tc.lower, tc.upper); got != tc.want {
			t.Fatalf("TickInRange(%d, %d, %d) = %v, want %v", tc.current, tc.lower, tc.upper, got, tc.want)
		}
	}
}
