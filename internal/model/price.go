package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a USD quote for one token, or an explicit unavailable marker.
// A quote of zero is a real price; Available distinguishes it from "unknown".
type PriceQuote struct {
	TokenID   string          `json:"token_id"`
	USD       decimal.Decimal `json:"usd"`
	AsOf      time.Time       `json:"as_of"`
	Source    string          `json:"source"`
	Available bool            `json:"available"`
}

// UnavailableQuote returns the explicit "no quote" variant for a token.
func UnavailableQuote(tokenID string) PriceQuote {
	return PriceQuote{TokenID: tokenID, Available: false}
}

// USDValue is a tagged USD amount: either a computed value (Known) or an
// explicit unknown. Unknown is never represented as zero.
type USDValue struct {
	Amount decimal.Decimal `json:"amount"`
	Known  bool            `json:"known"`
}

// KnownUSD wraps a computed USD amount.
func KnownUSD(amount decimal.Decimal) USDValue {
	return USDValue{Amount: amount, Known: true}
}

// UnknownUSD is the explicit could-not-compute variant.
func UnknownUSD() USDValue {
	return USDValue{}
}

// SumUSD adds the known parts of the inputs. The second return reports
// whether any part was unknown (the sum is then a partial, best-effort
// figure); if every part is unknown the result itself is unknown.
func SumUSD(values ...USDValue) (USDValue, bool) {
	sum := decimal.Zero
	anyKnown := false
	anyUnknown := false
	for _, v := range values {
		if v.Known {
			sum = sum.Add(v.Amount)
			anyKnown = true
		} else {
			anyUnknown = true
		}
	}
	if !anyKnown {
		return UnknownUSD(), anyUnknown
	}
	return KnownUSD(sum), anyUnknown
}
