package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// CallRequest is one read-only contract call.
type CallRequest struct {
	To   common.Address
	Data []byte

	// From is the zero address unless the call must run as a specific
	// sender, e.g. simulating an owner-gated method.
	From common.Address
}

// CallResult holds the return data or error of one call in a batch. Batch
// responses preserve request order.
type CallResult struct {
	Data []byte
	Err  error
}

// EVMClient wraps go-ethereum RPC for single and batched eth_call reads.
type EVMClient struct {
	rpcClient   *rpc.Client
	ethClient   *ethclient.Client
	callTimeout time.Duration
}

// DialEVM connects to an EVM JSON-RPC endpoint.
func DialEVM(ctx context.Context, rpcURL string, callTimeout time.Duration) (*EVMClient, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, classify(fmt.Errorf("dial %s: %w", rpcURL, err))
	}
	return &EVMClient{
		rpcClient:   rpcClient,
		ethClient:   ethclient.NewClient(rpcClient),
		callTimeout: callTimeout,
	}, nil
}

// Close closes the underlying RPC client.
func (c *EVMClient) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Call performs a single eth_call at the latest block.
func (c *EVMClient) Call(ctx context.Context, req CallRequest) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msg := ethereum.CallMsg{To: &req.To, Data: req.Data}
	if (req.From != common.Address{}) {
		msg.From = req.From
	}
	out, err := c.ethClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("eth_call %s: %w", req.To.Hex(), err))
	}
	return out, nil
}

// BatchCall performs eth_call for each request in one JSON-RPC batch.
// Results are positional: results[i] answers reqs[i].
func (c *EVMClient) BatchCall(ctx context.Context, reqs []CallRequest) ([]CallResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	elems := make([]rpc.BatchElem, len(reqs))
	outs := make([]hexutil.Bytes, len(reqs))
	for i, req := range reqs {
		arg := map[string]interface{}{
			"to":   req.To,
			"data": hexutil.Bytes(req.Data),
		}
		if (req.From != common.Address{}) {
			arg["from"] = req.From
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{arg, "latest"},
			Result: &outs[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, elems); err != nil {
		return nil, classify(fmt.Errorf("batch eth_call: %w", err))
	}

	results := make([]CallResult, len(reqs))
	for i := range elems {
		if elems[i].Error != nil {
			results[i] = CallResult{Err: classify(fmt.Errorf("eth_call %s: %w", reqs[i].To.Hex(), elems[i].Error))}
			continue
		}
		results[i] = CallResult{Data: outs[i]}
	}
	return results, nil
}

// ChainID returns the chain ID of the connected endpoint.
func (c *EVMClient) ChainID(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, classify(err)
	}
	return id.Uint64(), nil
}

func (c *EVMClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}
