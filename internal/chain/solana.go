package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"positionscope/internal/model"
)

// Asset is one token account returned by the DAS asset index.
type Asset struct {
	ID      string
	Name    string
	JSONURI string
}

// AssetPage is one page of a wallet's assets. Total counts all assets the
// owner holds, across pages.
type AssetPage struct {
	Total int
	Limit int
	Items []Asset
}

// SolanaClient speaks JSON-RPC to a Solana endpoint, including the DAS asset
// index extension.
type SolanaClient struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewSolanaClient builds a client for the given RPC URL. rps caps outbound
// request rate; zero disables the cap.
func NewSolanaClient(rpcURL string, timeout time.Duration, rps float64) *SolanaClient {
	httpClient := resty.New().
		SetBaseURL(rpcURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &SolanaClient{http: httpClient, limiter: limiter}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type accountValue struct {
	Data []string `json:"data"`
}

// ErrAccountNotFound marks an address with no account at it.
var ErrAccountNotFound = fmt.Errorf("account not found")

// GetAccountInfo fetches one account's raw data.
func (c *SolanaClient) GetAccountInfo(ctx context.Context, address string) ([]byte, error) {
	var result struct {
		Value *accountValue `json:"value"`
	}
	params := []interface{}{address, map[string]string{"encoding": "base64"}}
	if err := c.post(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, &model.RPCError{Err: fmt.Errorf("%s: %w", address, ErrAccountNotFound)}
	}
	return decodeAccountData(result.Value.Data)
}

// GetMultipleAccounts fetches raw data for up to 100 accounts in one call.
// The returned slice is positional; a nil entry means no account exists at
// that address.
func (c *SolanaClient) GetMultipleAccounts(ctx context.Context, addresses []string) ([][]byte, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	var result struct {
		Value []*accountValue `json:"value"`
	}
	params := []interface{}{addresses, map[string]string{"encoding": "base64"}}
	if err := c.post(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) != len(addresses) {
		return nil, &model.RPCError{Err: fmt.Errorf("getMultipleAccounts returned %d values for %d addresses", len(result.Value), len(addresses))}
	}

	out := make([][]byte, len(addresses))
	for i, value := range result.Value {
		if value == nil {
			continue
		}
		data, err := decodeAccountData(value.Data)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

// GetAssetsByOwner fetches one page of a wallet's assets from the DAS index.
// Pages are 1-based.
func (c *SolanaClient) GetAssetsByOwner(ctx context.Context, owner string, page, limit int) (AssetPage, error) {
	var result struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
		Items []struct {
			ID      string `json:"id"`
			Content struct {
				JSONURI  string `json:"json_uri"`
				Metadata struct {
					Name string `json:"name"`
				} `json:"metadata"`
			} `json:"content"`
		} `json:"items"`
	}
	params := map[string]interface{}{
		"ownerAddress": owner,
		"page":         page,
		"limit":        limit,
	}
	if err := c.post(ctx, "getAssetsByOwner", params, &result); err != nil {
		return AssetPage{}, err
	}

	assets := make([]Asset, 0, len(result.Items))
	for _, item := range result.Items {
		assets = append(assets, Asset{
			ID:      item.ID,
			Name:    item.Content.Metadata.Name,
			JSONURI: item.Content.JSONURI,
		})
	}
	return AssetPage{Total: result.Total, Limit: result.Limit, Items: assets}, nil
}

func (c *SolanaClient) post(ctx context.Context, method string, params interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return classify(err)
		}
	}

	var envelope rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}).
		SetResult(&envelope).
		Post("")
	if err != nil {
		return classify(fmt.Errorf("%s: %w", method, err))
	}
	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError {
		return &model.RPCError{Transient: true, Err: fmt.Errorf("%s: http %d", method, resp.StatusCode())}
	}
	if !resp.IsSuccess() {
		return &model.RPCError{Err: fmt.Errorf("%s: http %d", method, resp.StatusCode())}
	}
	if envelope.Error != nil {
		err := fmt.Errorf("%s: rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
		return &model.RPCError{Transient: transientMessage(envelope.Error.Message), Err: err}
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &model.RPCError{Err: fmt.Errorf("%s: decode result: %w", method, err)}
	}
	return nil
}

// decodeAccountData unpacks the ["<base64>", "base64"] data tuple.
func decodeAccountData(data []string) ([]byte, error) {
	if len(data) < 1 {
		return nil, &model.RPCError{Err: fmt.Errorf("missing account data")}
	}
	if len(data) > 1 && data[1] != "base64" {
		return nil, &model.RPCError{Err: fmt.Errorf("unexpected account encoding %s", data[1])}
	}
	raw, err := base64.StdEncoding.DecodeString(data[0])
	if err != nil {
		return nil, &model.RPCError{Err: fmt.Errorf("decode account data: %w", err)}
	}
	return raw, nil
}
