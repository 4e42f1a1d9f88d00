package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Fee resolution sources recorded on ValuedPosition.FeeSource.
const (
	FeeSourceDirectRead        = "direct_read"
	FeeSourceSimulatedMutation = "simulated_collect"
	FeeSourceUnknown           = "unknown"
)

// FeeAmounts is the outcome of fee resolution for one position. Nil owed
// amounts with Source "unknown" mean the fees could not be determined; a
// present zero is a real zero.
type FeeAmounts struct {
	Owed0  *big.Int
	Owed1  *big.Int
	Source string
}

// ValuedPosition is the final normalized record for one scanned position.
type ValuedPosition struct {
	PositionID     string          `json:"position_id"`
	PoolID         string          `json:"pool_id"`
	Protocol       Protocol        `json:"protocol"`
	Chain          Chain           `json:"chain"`
	Amount0        decimal.Decimal `json:"amount0"`
	Amount1        decimal.Decimal `json:"amount1"`
	Token0ValueUSD USDValue        `json:"token0_value_usd"`
	Token1ValueUSD USDValue        `json:"token1_value_usd"`
	Fee0Amount     decimal.Decimal `json:"fee0_amount"`
	Fee1Amount     decimal.Decimal `json:"fee1_amount"`
	FeeValueUSD    USDValue        `json:"fee_value_usd"`
	FeeSource      string          `json:"fee_source"`
	InRange        bool            `json:"in_range"`
	ValueUSD       USDValue        `json:"value_usd"`
	Partial        bool            `json:"partial"`
	AsOf           time.Time       `json:"as_of"`

	// Supplementary pricing context for range reporting.
	CurrentPrice string `json:"current_price,omitempty"`
	PriceLower   string `json:"price_lower,omitempty"`
	PriceUpper   string `json:"price_upper,omitempty"`
}

// Reason codes attached to SkippedPosition records.
type ReasonCode string

const (
	ReasonDecodeError     ReasonCode = "decode_error"
	ReasonMathError       ReasonCode = "math_error"
	ReasonValuationError  ReasonCode = "valuation_error"
	ReasonDataUnavailable ReasonCode = "data_unavailable"
	ReasonPoolMismatch    ReasonCode = "pool_mismatch"
)

// SkippedPosition is emitted instead of a ValuedPosition when one position
// fails irrecoverably; it never aborts the surrounding scan.
type SkippedPosition struct {
	PositionID string     `json:"position_id"`
	ReasonCode ReasonCode `json:"reason_code"`
}
