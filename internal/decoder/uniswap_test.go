package decoder

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"positionscope/internal/model"
)

var (
	testToken0 = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testToken1 = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func packedPositions(t *testing.T, tickLower, tickUpper int64, liquidity, owed0, owed1 *big.Int) []byte {
	t.Helper()
	managerABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("parse manager abi: %v", err)
	}
	data, err := managerABI.Methods["positions"].Outputs.Pack(
		big.NewInt(0),    // nonce
		common.Address{}, // operator
		testToken0,
		testToken1,
		big.NewInt(3000), // fee
		big.NewInt(tickLower),
		big.NewInt(tickUpper),
		liquidity,
		big.NewInt(0), // fee growth 0
		big.NewInt(0), // fee growth 1
		owed0,
		owed1,
	)
	if err != nil {
		t.Fatalf("pack positions: %v", err)
	}
	return data
}

func packedPoolBlob(t *testing.T, sqrtPriceX96 *big.Int, tick int64) []byte {
	t.Helper()
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("parse pool abi: %v", err)
	}
	slot0, err := poolABI.Methods["slot0"].Outputs.Pack(
		sqrtPriceX96, big.NewInt(tick), uint16(0), uint16(1), uint16(1), uint8(0), true,
	)
	if err != nil {
		t.Fatalf("pack slot0: %v", err)
	}
	token0, err := poolABI.Methods["token0"].Outputs.Pack(testToken0)
	if err != nil {
		t.Fatalf("pack token0: %v", err)
	}
	token1, err := poolABI.Methods["token1"].Outputs.Pack(testToken1)
	if err != nil {
		t.Fatalf("pack token1: %v", err)
	}
	fee, err := poolABI.Methods["fee"].Outputs.Pack(big.NewInt(500))
	if err != nil {
		t.Fatalf("pack fee: %v", err)
	}

	blob := append([]byte{}, slot0...)
	blob = append(blob, token0...)
	blob = append(blob, token1...)
	blob = append(blob, fee...)
	return blob
}

func newUniswapDecoder(t *testing.T) *UniswapDecoder {
	t.Helper()
	d, err := NewUniswapDecoder()
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return d
}

func TestUniswapDecodePosition(t *testing.T) {
	liquidity := new(big.Int)
	liquidity.SetString("340282366920938463463374607431768211455", 10) // max uint128

	blob := model.RawAccountBlob{
		Protocol: model.ProtocolUniswapV3,
		Address:  "42",
		Data:     packedPositions(t, -887220, 887220, liquidity, big.NewInt(11), big.NewInt(13)),
	}

	pos, err := newUniswapDecoder(t).DecodePositionState(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.PositionID != "42" {
		t.Fatalf("position id = %s", pos.PositionID)
	}
	if pos.TickLower != -887220 || pos.TickUpper != 887220 {
		t.Fatalf("tick range = [%d,%d)", pos.TickLower, pos.TickUpper)
	}
	if pos.Liquidity.Cmp(liquidity) != 0 {
		t.Fatalf("liquidity = %s, want %s", pos.Liquidity, liquidity)
	}
	if pos.Owed0Raw.Int64() != 11 || pos.Owed1Raw.Int64() != 13 {
		t.Fatalf("owed = %s / %s", pos.Owed0Raw, pos.Owed1Raw)
	}
	if pos.Token0 != testToken0.Hex() || pos.Token1 != testToken1.Hex() {
		t.Fatalf("tokens = %s / %s", pos.Token0, pos.Token1)
	}
	if pos.FeeTier != 3000 {
		t.Fatalf("fee tier = %d, want 3000", pos.FeeTier)
	}
	if pos.PoolID != "" {
		t.Fatalf("pool id should be unresolved, got %s", pos.PoolID)
	}
}

// An empty call result means the target was not a contract or the call
// reverted. It must fail decoding, not read as a zeroed structure.
func TestUniswapDecodeEmptyPayload(t *testing.T) {
	d := newUniswapDecoder(t)

	for _, data := range [][]byte{nil, {}} {
		blob := model.RawAccountBlob{Protocol: model.ProtocolUniswapV3, Address: "42", Data: data}

		_, err := d.DecodePositionState(blob)
		var decodeErr *model.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("position: expected DecodeError, got %v", err)
		}

		_, err = d.DecodePoolState(blob)
		if !errors.As(err, &decodeErr) {
			t.Fatalf("pool: expected DecodeError, got %v", err)
		}
	}
}

func TestUniswapDecodeShortPayload(t *testing.T) {
	d := newUniswapDecoder(t)
	full := packedPositions(t, -100, 100, big.NewInt(1), big.NewInt(0), big.NewInt(0))

	blob := model.RawAccountBlob{Protocol: model.ProtocolUniswapV3, Address: "42", Data: full[:len(full)-32]}
	_, err := d.DecodePositionState(blob)
	var decodeErr *model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestUniswapDecodeInvertedRange(t *testing.T) {
	blob := model.RawAccountBlob{
		Protocol: model.ProtocolUniswapV3,
		Address:  "42",
		Data:     packedPositions(t, 100, -100, big.NewInt(1), big.NewInt(0), big.NewInt(0)),
	}
	_, err := newUniswapDecoder(t).DecodePositionState(blob)
	var decodeErr *model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestUniswapDecodePool(t *testing.T) {
	sqrtPriceX96 := new(big.Int).Lsh(big.NewInt(1), 96)

	blob := model.RawAccountBlob{
		Protocol: model.ProtocolUniswapV3,
		Address:  "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		Data:     packedPoolBlob(t, sqrtPriceX96, -7),
	}

	pool, err := newUniswapDecoder(t).DecodePoolState(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.PoolID != blob.Address {
		t.Fatalf("pool id = %s", pool.PoolID)
	}
	if pool.SqrtPriceX96.Cmp(sqrtPriceX96) != 0 {
		t.Fatalf("sqrt price = %s, want %s", pool.SqrtPriceX96, sqrtPriceX96)
	}
	if pool.TickCurrent != -7 {
		t.Fatalf("tick current = %d", pool.TickCurrent)
	}
	if pool.Token0 != testToken0.Hex() || pool.Token1 != testToken1.Hex() {
		t.Fatalf("tokens = %s / %s", pool.Token0, pool.Token1)
	}
	if pool.FeeTier != 500 {
		t.Fatalf("fee tier = %d, want 500", pool.FeeTier)
	}
}

func TestUniswapDecodePoolUninitialized(t *testing.T) {
	blob := model.RawAccountBlob{
		Protocol: model.ProtocolUniswapV3,
		Address:  "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		Data:     packedPoolBlob(t, big.NewInt(0), 0),
	}
	_, err := newUniswapDecoder(t).DecodePoolState(blob)
	var decodeErr *model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
