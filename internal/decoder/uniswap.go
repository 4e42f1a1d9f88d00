package decoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"positionscope/internal/clmm"
	"positionscope/internal/model"
)

// ABI return payload sizes in bytes. eth_call results for these methods are
// head-only (no dynamic types), so the sizes are exact.
const (
	wordSize            = 32
	positionsReturnSize = 12 * wordSize
	slot0ReturnSize     = 7 * wordSize

	// A pool blob is the concatenation of the slot0, token0, token1 and fee
	// call results, in that order.
	poolBlobSize = slot0ReturnSize + 3*wordSize
)

var errEmptyPayload = fmt.Errorf("empty payload")

// UniswapDecoder decodes ABI-encoded eth_call results for Uniswap V3
// positions and pools into normalized state.
type UniswapDecoder struct {
	managerABI abi.ABI
	poolABI    abi.ABI
}

// NewUniswapDecoder builds a Uniswap V3 decoder.
func NewUniswapDecoder() (*UniswapDecoder, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	return &UniswapDecoder{managerABI: managerABI, poolABI: poolABI}, nil
}

func (d *UniswapDecoder) Protocol() model.Protocol { return model.ProtocolUniswapV3 }

// DecodePositionState decodes the return data of positions(tokenId). The blob
// address carries the token ID the call was made for.
func (d *UniswapDecoder) DecodePositionState(blob model.RawAccountBlob) (model.PositionState, error) {
	if err := d.checkPayload(blob, positionsReturnSize); err != nil {
		return model.PositionState{}, err
	}

	values, err := d.managerABI.Unpack("positions", blob.Data)
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, fmt.Errorf("unpack positions: %w", err))
	}
	if len(values) != 12 {
		return model.PositionState{}, d.decodeErr(blob, fmt.Errorf("unexpected positions values: %d", len(values)))
	}

	token0, err := asAddress(values[2])
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	fee, err := asBigInt(values[4])
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	tickLower, err := d.decodeTick(blob, values[5])
	if err != nil {
		return model.PositionState{}, err
	}
	tickUpper, err := d.decodeTick(blob, values[6])
	if err != nil {
		return model.PositionState{}, err
	}
	if tickLower >= tickUpper {
		return model.PositionState{}, d.decodeErr(blob, fmt.Errorf("tick range [%d,%d) inverted", tickLower, tickUpper))
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return model.PositionState{}, d.decodeErr(blob, err)
	}

	return model.PositionState{
		PositionID: blob.Address,
		TickLower:  tickLower,
		TickUpper:  tickUpper,
		Liquidity:  liquidity,
		Owed0Raw:   owed0,
		Owed1Raw:   owed1,
		Token0:     token0.Hex(),
		Token1:     token1.Hex(),
		FeeTier:    uint32(fee.Uint64()),
	}, nil
}

// DecodePoolState decodes a pool blob assembled from the slot0, token0,
// token1 and fee call results of one pool contract.
func (d *UniswapDecoder) DecodePoolState(blob model.RawAccountBlob) (model.PoolState, error) {
	if err := d.checkPayload(blob, poolBlobSize); err != nil {
		return model.PoolState{}, err
	}

	slot0Values, err := d.poolABI.Unpack("slot0", blob.Data[:slot0ReturnSize])
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, fmt.Errorf("unpack slot0: %w", err))
	}
	if len(slot0Values) != 7 {
		return model.PoolState{}, d.decodeErr(blob, fmt.Errorf("unexpected slot0 values: %d", len(slot0Values)))
	}
	sqrtPriceX96, err := asBigInt(slot0Values[0])
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, err)
	}
	// slot0 already carries the shared Q64.96 format; no conversion needed.
	if sqrtPriceX96.Sign() <= 0 {
		return model.PoolState{}, d.decodeErr(blob, fmt.Errorf("pool not initialized"))
	}
	tickCurrent, err := d.decodeTick(blob, slot0Values[1])
	if err != nil {
		return model.PoolState{}, err
	}

	token0, err := d.unpackAddress("token0", blob.Data[slot0ReturnSize:slot0ReturnSize+wordSize])
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, err)
	}
	token1, err := d.unpackAddress("token1", blob.Data[slot0ReturnSize+wordSize:slot0ReturnSize+2*wordSize])
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, err)
	}

	feeValues, err := d.poolABI.Unpack("fee", blob.Data[slot0ReturnSize+2*wordSize:poolBlobSize])
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, fmt.Errorf("unpack fee: %w", err))
	}
	fee, err := asBigInt(feeValues[0])
	if err != nil {
		return model.PoolState{}, d.decodeErr(blob, err)
	}

	return model.PoolState{
		PoolID:       blob.Address,
		TickCurrent:  tickCurrent,
		SqrtPriceX96: sqrtPriceX96,
		Token0:       token0.Hex(),
		Token1:       token1.Hex(),
		FeeTier:      uint32(fee.Uint64()),
	}, nil
}

// checkPayload rejects empty call results and short payloads before any
// field decoding runs. An empty result means the call hit a non-contract or
// reverted; it must never be read as an all-zero structure.
func (d *UniswapDecoder) checkPayload(blob model.RawAccountBlob, want int) error {
	if len(blob.Data) == 0 {
		return d.decodeErr(blob, errEmptyPayload)
	}
	if len(blob.Data) < want {
		return d.decodeErr(blob, fmt.Errorf("payload %d bytes, want %d", len(blob.Data), want))
	}
	return nil
}

func (d *UniswapDecoder) decodeTick(blob model.RawAccountBlob, value interface{}) (int32, error) {
	raw, err := asBigInt(value)
	if err != nil {
		return 0, d.decodeErr(blob, err)
	}
	tick, err := int24FromBig(raw)
	if err != nil {
		return 0, d.decodeErr(blob, err)
	}
	if tick < clmm.MinTick || tick > clmm.MaxTick {
		return 0, d.decodeErr(blob, &model.RangeError{Tick: tick})
	}
	return tick, nil
}

func (d *UniswapDecoder) unpackAddress(method string, data []byte) (common.Address, error) {
	values, err := d.poolABI.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	return asAddress(values[0])
}

func (d *UniswapDecoder) decodeErr(blob model.RawAccountBlob, err error) error {
	return &model.DecodeError{Protocol: model.ProtocolUniswapV3, Address: blob.Address, Err: err}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported integer type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
