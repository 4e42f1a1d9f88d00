package model

// Protocol identifies a supported CLMM protocol family.
type Protocol string

const (
	ProtocolRaydiumCLMM Protocol = "raydium-clmm"
	ProtocolUniswapV3   Protocol = "uniswap-v3"
)

// Chain identifies the network a position lives on.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
)

// RawAccountBlob is one raw account read tagged with its origin.
type RawAccountBlob struct {
	Protocol Protocol
	Address  string
	Data     []byte
}
