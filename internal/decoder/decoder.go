package decoder

import "positionscope/internal/model"

// ProtocolDecoder turns raw account payloads into normalized state for one
// protocol family. Scanners bind the decoder for their protocol directly.
type ProtocolDecoder interface {
	Protocol() model.Protocol
	DecodePoolState(blob model.RawAccountBlob) (model.PoolState, error)
	DecodePositionState(blob model.RawAccountBlob) (model.PositionState, error)
}

var (
	_ ProtocolDecoder = (*RaydiumDecoder)(nil)
	_ ProtocolDecoder = (*UniswapDecoder)(nil)
)
