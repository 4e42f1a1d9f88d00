package decoder

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/base58"

	"positionscope/internal/clmm"
	"positionscope/internal/model"
)

// Account payloads carry an 8-byte discriminator followed by the packed
// little-endian struct. Minimum sizes cover the fields this decoder reads;
// accounts may carry trailing reward and padding fields beyond them.
const (
	discriminatorSize = 8
	pubkeySize        = 32

	positionAccountMinSize  = discriminatorSize + 1 + 2*pubkeySize + 2*4 + 3*16 + 2*8 + 3*24
	poolAccountMinSize      = discriminatorSize + 1 + 7*pubkeySize + 2 + 2 + 2*16 + 4
	ammConfigAccountMinSize = discriminatorSize + 1 + 2 + pubkeySize + 4 + 4 + 2 + 4
)

// RaydiumDecoder decodes raw Solana account data for Raydium CLMM positions,
// pools and fee configs.
type RaydiumDecoder struct{}

func NewRaydiumDecoder() *RaydiumDecoder { return &RaydiumDecoder{} }

func (d *RaydiumDecoder) Protocol() model.Protocol { return model.ProtocolRaydiumCLMM }

// DecodePositionState decodes a personal position account.
func (d *RaydiumDecoder) DecodePositionState(blob model.RawAccountBlob) (model.PositionState, error) {
	r, err := d.newReader(blob, positionAccountMinSize)
	if err != nil {
		return model.PositionState{}, err
	}

	r.skip(1) // bump
	r.skip(pubkeySize)
	poolID := r.pubkey()
	tickLower := r.i32()
	tickUpper := r.i32()
	liquidity := r.u128()
	r.skip(2 * 16) // fee growth checkpoints
	owed0 := r.u64()
	owed1 := r.u64()
	if r.err != nil {
		return model.PositionState{}, d.decodeErr(blob, r.err)
	}

	if err := d.checkTick(tickLower); err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	if err := d.checkTick(tickUpper); err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	if tickLower >= tickUpper {
		return model.PositionState{}, d.decodeErr(blob, fmt.Errorf("tick range [%d,%d) inverted", tickLower, tickUpper))
	}

	return model.PositionState{
		PositionID: blob.Address,
		PoolID:     poolID,
		TickLower:  tickLower,
		TickUpper:  tickUpper,
		Liquidity:  liquidity,
		Owed0Raw:   new(big.Int).SetUint64(owed0),
		Owed1Raw:   new(big.Int).SetUint64(owed1),
	}, nil
}

// DecodePoolState decodes a pool account. The fee tier lives in the amm
// config account the pool references, so FeeTier is left unset here.
func (d *RaydiumDecoder) DecodePoolState(blob model.RawAccountBlob) (model.PoolState, error) {
	r, err := d.newReader(blob, poolAccountMinSize)
	if err != nil {
		return model.PoolState{}, err
	}

	r.skip(1) // bump
	ammConfig := r.pubkey()
	r.skip(pubkeySize) // owner
	token0 := r.pubkey()
	token1 := r.pubkey()
	r.skip(3 * pubkeySize) // vaults, observation key
	decimals0 := r.u8()
	decimals1 := r.u8()
	r.skip(2)  // tick spacing
	r.skip(16) // liquidity
	sqrtPriceX64 := r.u128()
	tickCurrent := r.i32()
	if r.err != nil {
		return model.PoolState{}, d.decodeErr(blob, r.err)
	}

	// Pool accounts store the sqrt price in Q64.64; widen to the shared
	// Q64.96 format here so downstream math never narrows.
	sqrtPriceX96, err := clmm.SqrtPriceX64ToX96(sqrtPriceX64)
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, fmt.Errorf("pool not initialized"))
	}
	if err := d.checkTick(tickCurrent); err != nil {
		return model.PoolState{}, d.decodeErr(blob, err)
	}

	return model.PoolState{
		PoolID:       blob.Address,
		TickCurrent:  tickCurrent,
		SqrtPriceX96: sqrtPriceX96,
		Token0:       token0,
		Token1:       token1,
		Decimals0:    decimals0,
		Decimals1:    decimals1,
		AmmConfig:    ammConfig,
	}, nil
}

// DecodeAmmConfig decodes a fee config account. TradeFeeRate is the fee tier
// in parts per million, matching the ABI protocol's fee units.
func (d *RaydiumDecoder) DecodeAmmConfig(blob model.RawAccountBlob) (model.AmmConfigState, error) {
	r, err := d.newReader(blob, ammConfigAccountMinSize)
	if err != nil {
		return model.AmmConfigState{}, err
	}

	r.skip(1) // bump
	r.skip(2) // index
	r.skip(pubkeySize)
	r.skip(4) // protocol fee rate
	tradeFeeRate := r.u32()
	tickSpacing := r.u16()
	if r.err != nil {
		return model.AmmConfigState{}, d.decodeErr(blob, r.err)
	}

	return model.AmmConfigState{
		ConfigID:     blob.Address,
		TradeFeeRate: tradeFeeRate,
		TickSpacing:  tickSpacing,
	}, nil
}

// newReader validates the payload prefix and positions a cursor past the
// discriminator. A discriminator of all zero bytes never occurs on real
// accounts and marks an uninitialized or wrong account.
func (d *RaydiumDecoder) newReader(blob model.RawAccountBlob, minSize int) (*byteReader, error) {
	if len(blob.Data) == 0 {
		return nil, d.decodeErr(blob, errEmptyPayload)
	}
	if len(blob.Data) < minSize {
		return nil, d.decodeErr(blob, fmt.Errorf("payload %d bytes, want at least %d", len(blob.Data), minSize))
	}
	zero := true
	for _, b := range blob.Data[:discriminatorSize] {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return nil, d.decodeErr(blob, fmt.Errorf("zero discriminator"))
	}
	return &byteReader{data: blob.Data, off: discriminatorSize}, nil
}

func (d *RaydiumDecoder) checkTick(tick int32) error {
	if tick < clmm.MinTick || tick > clmm.MaxTick {
		return &model.RangeError{Tick: tick}
	}
	return nil
}

func (d *RaydiumDecoder) decodeErr(blob model.RawAccountBlob, err error) error {
	return &model.DecodeError{Protocol: model.ProtocolRaydiumCLMM, Address: blob.Address, Err: err}
}

// byteReader walks a packed little-endian account payload. The first read
// past the end latches an error; callers check err once after reading.
type byteReader struct {
	data []byte
	off  int
	err  error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated payload at offset %d", r.off)
		return nil
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out
}

func (r *byteReader) skip(n int) { r.take(n) }

func (r *byteReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *byteReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *byteReader) i32() int32 {
	return int32(r.u32())
}

func (r *byteReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *byteReader) u128() *big.Int {
	b := r.take(16)
	if b == nil {
		return new(big.Int)
	}
	be := make([]byte, 16)
	for i, v := range b {
		be[15-i] = v
	}
	return new(big.Int).SetBytes(be)
}

func (r *byteReader) pubkey() string {
	b := r.take(pubkeySize)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}
