package model

import "math/big"

// PoolState is the normalized decoded state of a CLMM pool.
//
// SqrtPriceX96 is the square root of the token1/token0 price in Q64.96
// fixed point regardless of the protocol's native representation; decoders
// convert at the boundary so all downstream math runs on one format. 96
// fractional bits keep adjacent ticks distinct across the whole tick domain,
// which narrower formats do not.
type PoolState struct {
	PoolID       string   `json:"pool_id"`
	TickCurrent  int32    `json:"tick_current"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Token0       string   `json:"token0"`
	Token1       string   `json:"token1"`
	Decimals0    uint8    `json:"decimals0"`
	Decimals1    uint8    `json:"decimals1"`
	FeeTier      uint32   `json:"fee_tier"`

	// AmmConfig is the fee config account for fixed-layout pools whose fee
	// tier lives in a separate account; empty for ABI protocols.
	AmmConfig string `json:"amm_config,omitempty"`
}

// PositionState is the normalized decoded state of one liquidity position.
type PositionState struct {
	PositionID string   `json:"position_id"`
	PoolID     string   `json:"pool_id"`
	TickLower  int32    `json:"tick_lower"`
	TickUpper  int32    `json:"tick_upper"`
	Liquidity  *big.Int `json:"liquidity"`
	Owed0Raw   *big.Int `json:"owed0_raw"`
	Owed1Raw   *big.Int `json:"owed1_raw"`

	// Token0/Token1/FeeTier are populated for ABI-decoded positions, which
	// carry the pair instead of a pool reference; the scanner resolves the
	// pool address from them.
	Token0  string `json:"token0,omitempty"`
	Token1  string `json:"token1,omitempty"`
	FeeTier uint32 `json:"fee_tier,omitempty"`
}

// AmmConfigState holds the fields read from a fixed-layout fee config account.
type AmmConfigState struct {
	ConfigID     string `json:"config_id"`
	TradeFeeRate uint32 `json:"trade_fee_rate"`
	TickSpacing  uint16 `json:"tick_spacing"`
}
