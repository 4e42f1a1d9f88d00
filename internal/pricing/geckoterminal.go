package pricing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"positionscope/internal/model"
)

const (
	geckoTerminalBaseURL = "https://api.geckoterminal.com/api/v2"
	geckoSource          = "geckoterminal"
)

// GeckoTerminal quotes token prices from the GeckoTerminal simple price API.
// One client serves one network.
type GeckoTerminal struct {
	http    *resty.Client
	network string
}

// NewGeckoTerminal builds an oracle for the given network slug, e.g. "eth"
// or "solana". An empty baseURL uses the public endpoint.
func NewGeckoTerminal(baseURL, network string, timeout time.Duration) *GeckoTerminal {
	if baseURL == "" {
		baseURL = geckoTerminalBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &GeckoTerminal{http: httpClient, network: network}
}

// GetPrice fetches the USD price of one token. A token the API does not
// know, or knows without a price, yields an unavailable quote and no error.
func (g *GeckoTerminal) GetPrice(ctx context.Context, tokenID string) (model.PriceQuote, error) {
	var result struct {
		Data struct {
			Attributes struct {
				TokenPrices map[string]*string `json:"token_prices"`
			} `json:"attributes"`
		} `json:"data"`
	}

	resp, err := g.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/simple/networks/%s/token_price/%s", g.network, tokenID))
	if err != nil {
		return model.PriceQuote{}, &model.RPCError{Transient: true, Err: fmt.Errorf("price %s: %w", tokenID, err)}
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return model.UnavailableQuote(tokenID), nil
	case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError:
		return model.PriceQuote{}, &model.RPCError{Transient: true, Err: fmt.Errorf("price %s: http %d", tokenID, resp.StatusCode())}
	case !resp.IsSuccess():
		return model.PriceQuote{}, &model.RPCError{Err: fmt.Errorf("price %s: http %d", tokenID, resp.StatusCode())}
	}

	// The response keys echo the requested address, lowercased on EVM
	// networks. Match case-insensitively.
	var raw *string
	for key, value := range result.Data.Attributes.TokenPrices {
		if strings.EqualFold(key, tokenID) {
			raw = value
			break
		}
	}
	if raw == nil {
		return model.UnavailableQuote(tokenID), nil
	}

	usd, err := decimal.NewFromString(*raw)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("price %s: parse %q: %w", tokenID, *raw, err)
	}
	return model.PriceQuote{
		TokenID:   tokenID,
		USD:       usd,
		AsOf:      time.Now().UTC(),
		Source:    geckoSource,
		Available: true,
	}, nil
}
