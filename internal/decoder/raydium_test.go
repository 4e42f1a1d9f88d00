package decoder

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"

	"positionscope/internal/model"
)

func appendU16LE(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendU32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendI32LE(buf []byte, v int32) []byte {
	return appendU32LE(buf, uint32(v))
}

func appendU64LE(buf []byte, v uint64) []byte {
	buf = appendU32LE(buf, uint32(v))
	return appendU32LE(buf, uint32(v>>32))
}

func appendU128LE(buf []byte, v *big.Int) []byte {
	be := v.FillBytes(make([]byte, 16))
	for i := 15; i >= 0; i-- {
		buf = append(buf, be[i])
	}
	return buf
}

func fillKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func positionPayload(poolKey []byte, tickLower, tickUpper int32, liquidity *big.Int, owed0, owed1 uint64) []byte {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8} // discriminator
	buf = append(buf, 0xff)               // bump
	buf = append(buf, fillKey(0x11)...)   // nft mint
	buf = append(buf, poolKey...)
	buf = appendI32LE(buf, tickLower)
	buf = appendI32LE(buf, tickUpper)
	buf = appendU128LE(buf, liquidity)
	buf = append(buf, make([]byte, 2*16)...) // fee growth checkpoints
	buf = appendU64LE(buf, owed0)
	buf = appendU64LE(buf, owed1)
	buf = append(buf, make([]byte, 3*24)...) // reward infos
	return buf
}

func poolPayload(configKey, token0Key, token1Key []byte, decimals0, decimals1 uint8, sqrtPrice *big.Int, tick int32) []byte {
	buf := []byte{9, 9, 9, 9, 9, 9, 9, 9} // discriminator
	buf = append(buf, 0xfe)               // bump
	buf = append(buf, configKey...)
	buf = append(buf, fillKey(0x33)...) // owner
	buf = append(buf, token0Key...)
	buf = append(buf, token1Key...)
	buf = append(buf, fillKey(0x66)...) // vault0
	buf = append(buf, fillKey(0x77)...) // vault1
	buf = append(buf, fillKey(0x88)...) // observation key
	buf = append(buf, decimals0, decimals1)
	buf = appendU16LE(buf, 60) // tick spacing
	buf = appendU128LE(buf, big.NewInt(0))
	buf = appendU128LE(buf, sqrtPrice)
	buf = appendI32LE(buf, tick)
	return buf
}

func TestRaydiumDecodePosition(t *testing.T) {
	poolKey := fillKey(0x22)
	liquidity := new(big.Int)
	liquidity.SetString("123456789012345678901", 10)

	blob := model.RawAccountBlob{
		Protocol: model.ProtocolRaydiumCLMM,
		Address:  "PositionPDA111",
		Data:     positionPayload(poolKey, -100, 100, liquidity, 500, 700),
	}

	pos, err := NewRaydiumDecoder().DecodePositionState(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.PositionID != "PositionPDA111" {
		t.Fatalf("position id = %s", pos.PositionID)
	}
	if want := base58.Encode(poolKey); pos.PoolID != want {
		t.Fatalf("pool id = %s, want %s", pos.PoolID, want)
	}
	if pos.TickLower != -100 || pos.TickUpper != 100 {
		t.Fatalf("tick range = [%d,%d)", pos.TickLower, pos.TickUpper)
	}
	if pos.Liquidity.Cmp(liquidity) != 0 {
		t.Fatalf("liquidity = %s, want %s", pos.Liquidity, liquidity)
	}
	if pos.Owed0Raw.Uint64() != 500 || pos.Owed1Raw.Uint64() != 700 {
		t.Fatalf("owed = %s / %s", pos.Owed0Raw, pos.Owed1Raw)
	}
}

func TestRaydiumDecodePositionRejectsBadPayloads(t *testing.T) {
	liquidity := big.NewInt(1)
	good := positionPayload(fillKey(0x22), -100, 100, liquidity, 0, 0)

	zeroDisc := append([]byte{}, good...)
	copy(zeroDisc[:8], make([]byte, 8))

	cases := map[string][]byte{
		"empty":              nil,
		"short":              good[:50],
		"zero discriminator": zeroDisc,
		"tick out of range":  positionPayload(fillKey(0x22), -1000000, 100, liquidity, 0, 0),
		"inverted range":     positionPayload(fillKey(0x22), 100, -100, liquidity, 0, 0),
	}

	d := NewRaydiumDecoder()
	for name, payload := range cases {
		blob := model.RawAccountBlob{Protocol: model.ProtocolRaydiumCLMM, Address: "x", Data: payload}
		_, err := d.DecodePositionState(blob)
		var decodeErr *model.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("%s: expected DecodeError, got %v", name, err)
		}
	}
}

func TestRaydiumDecodePool(t *testing.T) {
	configKey := fillKey(0x44)
	token0Key := fillKey(0x55)
	token1Key := fillKey(0x56)
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 64)

	blob := model.RawAccountBlob{
		Protocol: model.ProtocolRaydiumCLMM,
		Address:  "PoolPDA111",
		Data:     poolPayload(configKey, token0Key, token1Key, 6, 9, sqrtPrice, 42),
	}

	pool, err := NewRaydiumDecoder().DecodePoolState(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.PoolID != "PoolPDA111" {
		t.Fatalf("pool id = %s", pool.PoolID)
	}
	// The account stores Q64.64; the decoder widens to Q64.96.
	if want := new(big.Int).Lsh(sqrtPrice, 32); pool.SqrtPriceX96.Cmp(want) != 0 {
		t.Fatalf("sqrt price = %s, want %s", pool.SqrtPriceX96, want)
	}
	if pool.TickCurrent != 42 {
		t.Fatalf("tick current = %d", pool.TickCurrent)
	}
	if pool.Decimals0 != 6 || pool.Decimals1 != 9 {
		t.Fatalf("decimals = %d / %d", pool.Decimals0, pool.Decimals1)
	}
	if want := base58.Encode(token0Key); pool.Token0 != want {
		t.Fatalf("token0 = %s, want %s", pool.Token0, want)
	}
	if want := base58.Encode(configKey); pool.AmmConfig != want {
		t.Fatalf("amm config = %s, want %s", pool.AmmConfig, want)
	}
	if pool.FeeTier != 0 {
		t.Fatalf("fee tier should be unset, got %d", pool.FeeTier)
	}
}

func TestRaydiumDecodePoolRejectsUninitialized(t *testing.T) {
	blob := model.RawAccountBlob{
		Protocol: model.ProtocolRaydiumCLMM,
		Address:  "PoolPDA111",
		Data:     poolPayload(fillKey(0x44), fillKey(0x55), fillKey(0x56), 6, 6, big.NewInt(0), 0),
	}
	_, err := NewRaydiumDecoder().DecodePoolState(blob)
	var decodeErr *model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestRaydiumDecodeAmmConfig(t *testing.T) {
	buf := []byte{1, 1, 1, 1, 1, 1, 1, 1} // discriminator
	buf = append(buf, 0xfd)               // bump
	buf = appendU16LE(buf, 4)             // index
	buf = append(buf, fillKey(0x99)...)   // owner
	buf = appendU32LE(buf, 12000)         // protocol fee rate
	buf = appendU32LE(buf, 2500)          // trade fee rate
	buf = appendU16LE(buf, 60)            // tick spacing
	buf = appendU32LE(buf, 40000)         // fund fee rate

	blob := model.RawAccountBlob{Protocol: model.ProtocolRaydiumCLMM, Address: "Config111", Data: buf}
	cfg, err := NewRaydiumDecoder().DecodeAmmConfig(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConfigID != "Config111" {
		t.Fatalf("config id = %s", cfg.ConfigID)
	}
	if cfg.TradeFeeRate != 2500 {
		t.Fatalf("trade fee rate = %d, want 2500", cfg.TradeFeeRate)
	}
	if cfg.TickSpacing != 60 {
		t.Fatalf("tick spacing = %d, want 60", cfg.TickSpacing)
	}
}
