package pricing

import (
	"context"

	"positionscope/internal/model"
)

// Oracle resolves a token identifier to a USD quote. Implementations return
// an unavailable quote, not an error, when the token simply has no listed
// price; errors are reserved for transport failures.
type Oracle interface {
	GetPrice(ctx context.Context, tokenID string) (model.PriceQuote, error)
}
