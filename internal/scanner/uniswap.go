package scanner

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"positionscope/internal/chain"
	"positionscope/internal/decoder"
	"positionscope/internal/model"
	"positionscope/internal/valuator"
)

// EVMReader is the read surface the Uniswap scanner needs. Satisfied by
// chain.EVMClient.
type EVMReader interface {
	Call(ctx context.Context, req chain.CallRequest) ([]byte, error)
	BatchCall(ctx context.Context, reqs []chain.CallRequest) ([]chain.CallResult, error)
}

// UniswapScannerConfig tunes batching and retry behavior.
type UniswapScannerConfig struct {
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

// poolCallMethods are the per-pool reads whose concatenated results form the
// pool blob the decoder expects, in this order.
var poolCallMethods = []string{"slot0", "token0", "token1", "fee"}

// UniswapScanner enumerates a wallet's position NFTs on the position
// manager, reads position and pool state through batched eth_call and values
// the positions.
type UniswapScanner struct {
	client   EVMReader
	decoder  *decoder.UniswapDecoder
	valuator *valuator.Valuator
	prices   valuator.PriceLookup
	logger   *zap.Logger
	cfg      UniswapScannerConfig

	manager common.Address
	factory common.Address

	managerABI  abi.ABI
	poolABI     abi.ABI
	factoryABI  abi.ABI
	erc20ABI    abi.ABI
	erc20B32ABI abi.ABI
	tokenMeta   *tokenMetaCache
}

// NewUniswapScanner builds a scanner against one position manager and its
// factory.
func NewUniswapScanner(
	client EVMReader,
	manager, factory common.Address,
	val *valuator.Valuator,
	prices valuator.PriceLookup,
	cfg UniswapScannerConfig,
	logger *zap.Logger,
) (*UniswapScanner, error) {
	managerABI, err := decoder.PositionManagerABI()
	if err != nil {
		return nil, err
	}
	poolABI, err := decoder.V3PoolABI()
	if err != nil {
		return nil, err
	}
	factoryABI, err := decoder.V3FactoryABI()
	if err != nil {
		return nil, err
	}
	erc20ABI, err := decoder.ERC20ABI()
	if err != nil {
		return nil, err
	}
	erc20B32ABI, err := decoder.ERC20Bytes32ABI()
	if err != nil {
		return nil, err
	}
	uniDecoder, err := decoder.NewUniswapDecoder()
	if err != nil {
		return nil, err
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniswapScanner{
		client:      client,
		decoder:     uniDecoder,
		valuator:    val,
		prices:      prices,
		logger:      logger,
		cfg:         cfg,
		manager:     manager,
		factory:     factory,
		managerABI:  managerABI,
		poolABI:     poolABI,
		factoryABI:  factoryABI,
		erc20ABI:    erc20ABI,
		erc20B32ABI: erc20B32ABI,
		tokenMeta:   newTokenMetaCache(),
	}, nil
}

func (s *UniswapScanner) Protocol() model.Protocol { return model.ProtocolUniswapV3 }

// Scan values every position NFT the wallet holds on the manager. Failures
// of a single position become SkippedPosition records; only wallet-wide
// enumeration failures abort the scan.
func (s *UniswapScanner) Scan(ctx context.Context, wallet string) (Result, error) {
	var result Result

	if !common.IsHexAddress(wallet) {
		return result, fmt.Errorf("invalid wallet address %q", wallet)
	}
	owner := common.HexToAddress(wallet)

	tokenIDs, err := s.enumerateTokenIDs(ctx, owner, &result)
	if err != nil {
		return result, err
	}
	if len(tokenIDs) == 0 {
		return result, nil
	}
	s.logger.Info("discovered positions",
		zap.String("wallet", wallet),
		zap.Int("count", len(tokenIDs)))

	positions := s.decodePositions(ctx, tokenIDs, &result)
	pools := s.fetchPools(ctx, positions, &result)

	for i := range positions {
		pos := positions[i]
		pool, ok := pools[pos.PoolID]
		if !ok {
			// Already skipped while resolving or reading the pool.
			continue
		}
		record, err := s.valuator.ValuePosition(ctx, model.ProtocolUniswapV3, model.ChainEthereum, pos, pool, s.prices)
		if err != nil {
			s.logger.Warn("valuation failed",
				zap.String("position", pos.PositionID),
				zap.Error(err))
			result.Skipped = append(result.Skipped, model.SkippedPosition{
				PositionID: pos.PositionID,
				ReasonCode: skipReason(err),
			})
			continue
		}
		result.Positions = append(result.Positions, record)
	}
	return result, nil
}

// enumerateTokenIDs reads balanceOf and walks tokenOfOwnerByIndex in
// batches. Batch responses are positional, so result i always answers the
// i-th requested index.
func (s *UniswapScanner) enumerateTokenIDs(ctx context.Context, owner common.Address, result *Result) ([]*big.Int, error) {
	balanceData, err := s.managerABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	var out []byte
	err = withRetry(ctx, s.cfg.MaxRetries, s.cfg.BaseDelay, func(ctx context.Context) error {
		var err error
		out, err = s.client.Call(ctx, chain.CallRequest{To: s.manager, Data: balanceData})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", owner.Hex(), err)
	}
	values, err := s.managerABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	total := values[0].(*big.Int).Int64()
	if total == 0 {
		return nil, nil
	}

	indexes := make([]int64, total)
	for i := range indexes {
		indexes[i] = int64(i)
	}

	var tokenIDs []*big.Int
	for _, batch := range splitChunks(indexes, s.cfg.BatchSize) {
		reqs := make([]chain.CallRequest, len(batch))
		for i, index := range batch {
			data, err := s.managerABI.Pack("tokenOfOwnerByIndex", owner, big.NewInt(index))
			if err != nil {
				return nil, fmt.Errorf("pack tokenOfOwnerByIndex: %w", err)
			}
			reqs[i] = chain.CallRequest{To: s.manager, Data: data}
		}
		results, err := s.batchCall(ctx, reqs)
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex batch: %w", err)
		}
		for i, res := range results {
			slotID := fmt.Sprintf("%s/%d", owner.Hex(), batch[i])
			if res.Err != nil {
				s.logger.Warn("token index lookup failed",
					zap.Int64("index", batch[i]),
					zap.Error(res.Err))
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: slotID,
					ReasonCode: model.ReasonDataUnavailable,
				})
				continue
			}
			values, err := s.managerABI.Unpack("tokenOfOwnerByIndex", res.Data)
			if err != nil || len(values) != 1 {
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: slotID,
					ReasonCode: model.ReasonDecodeError,
				})
				continue
			}
			tokenIDs = append(tokenIDs, values[0].(*big.Int))
		}
	}
	return tokenIDs, nil
}

func (s *UniswapScanner) decodePositions(ctx context.Context, tokenIDs []*big.Int, result *Result) []model.PositionState {
	positions := make([]model.PositionState, 0, len(tokenIDs))
	for _, batch := range splitChunks(tokenIDs, s.cfg.BatchSize) {
		reqs := make([]chain.CallRequest, len(batch))
		for i, tokenID := range batch {
			data, err := s.managerABI.Pack("positions", tokenID)
			if err != nil {
				return positions
			}
			reqs[i] = chain.CallRequest{To: s.manager, Data: data}
		}
		results, err := s.batchCall(ctx, reqs)
		if err != nil {
			s.logger.Warn("positions batch failed", zap.Error(err))
			for _, tokenID := range batch {
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: tokenID.String(),
					ReasonCode: model.ReasonDataUnavailable,
				})
			}
			continue
		}
		for i, res := range results {
			positionID := batch[i].String()
			if res.Err != nil {
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: positionID,
					ReasonCode: model.ReasonDataUnavailable,
				})
				continue
			}
			pos, err := s.decoder.DecodePositionState(model.RawAccountBlob{
				Protocol: model.ProtocolUniswapV3,
				Address:  positionID,
				Data:     res.Data,
			})
			if err != nil {
				s.logger.Warn("position decode failed", zap.String("position", positionID), zap.Error(err))
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: positionID,
					ReasonCode: skipReason(err),
				})
				continue
			}
			positions = append(positions, pos)
		}
	}
	return positions
}

// fetchPools resolves each position's pool address through the factory,
// reads pool state and token decimals, and rewrites PositionState.PoolID in
// place. Positions whose pool cannot be resolved or read are skipped here.
func (s *UniswapScanner) fetchPools(ctx context.Context, positions []model.PositionState, result *Result) map[string]model.PoolState {
	type pairKey struct {
		token0, token1 string
		fee            uint32
	}

	byPair := make(map[pairKey][]int)
	var pairs []pairKey
	for i, pos := range positions {
		key := pairKey{pos.Token0, pos.Token1, pos.FeeTier}
		if _, ok := byPair[key]; !ok {
			pairs = append(pairs, key)
		}
		byPair[key] = append(byPair[key], i)
	}

	skipPair := func(key pairKey, reason model.ReasonCode) {
		for _, i := range byPair[key] {
			result.Skipped = append(result.Skipped, model.SkippedPosition{
				PositionID: positions[i].PositionID,
				ReasonCode: reason,
			})
		}
	}

	resolved := make(map[pairKey]common.Address, len(pairs))
	for _, batch := range splitChunks(pairs, s.cfg.BatchSize) {
		reqs := make([]chain.CallRequest, len(batch))
		for i, key := range batch {
			data, err := s.factoryABI.Pack("getPool",
				common.HexToAddress(key.token0),
				common.HexToAddress(key.token1),
				big.NewInt(int64(key.fee)))
			if err != nil {
				s.logger.Error("pack getPool", zap.Error(err))
				continue
			}
			reqs[i] = chain.CallRequest{To: s.factory, Data: data}
		}
		results, err := s.batchCall(ctx, reqs)
		if err != nil {
			s.logger.Warn("getPool batch failed", zap.Error(err))
			for _, key := range batch {
				skipPair(key, model.ReasonDataUnavailable)
			}
			continue
		}
		for i, res := range results {
			key := batch[i]
			if res.Err != nil {
				skipPair(key, model.ReasonDataUnavailable)
				continue
			}
			values, err := s.factoryABI.Unpack("getPool", res.Data)
			if err != nil || len(values) != 1 {
				skipPair(key, model.ReasonDecodeError)
				continue
			}
			addr := values[0].(common.Address)
			if addr == (common.Address{}) {
				// The factory has no pool for this pair and fee.
				skipPair(key, model.ReasonPoolMismatch)
				continue
			}
			resolved[key] = addr
		}
	}

	var poolAddrs []common.Address
	seen := make(map[common.Address]bool)
	for key, addr := range resolved {
		for _, i := range byPair[key] {
			positions[i].PoolID = addr.Hex()
		}
		if !seen[addr] {
			seen[addr] = true
			poolAddrs = append(poolAddrs, addr)
		}
	}

	skipByPool := func(poolID string, reason model.ReasonCode) {
		for i := range positions {
			if positions[i].PoolID == poolID {
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: positions[i].PositionID,
					ReasonCode: reason,
				})
			}
		}
	}

	pools := s.readPoolStates(ctx, poolAddrs, skipByPool)
	s.fillTokenMeta(ctx, pools, skipByPool)
	return pools
}

// readPoolStates assembles one pool blob per pool from four batched calls
// and decodes it.
func (s *UniswapScanner) readPoolStates(
	ctx context.Context,
	poolAddrs []common.Address,
	skip func(poolID string, reason model.ReasonCode),
) map[string]model.PoolState {
	pools := make(map[string]model.PoolState, len(poolAddrs))

	poolsPerBatch := s.cfg.BatchSize / len(poolCallMethods)
	if poolsPerBatch < 1 {
		poolsPerBatch = 1
	}

	for _, batch := range splitChunks(poolAddrs, poolsPerBatch) {
		reqs := make([]chain.CallRequest, 0, len(batch)*len(poolCallMethods))
		for _, addr := range batch {
			for _, method := range poolCallMethods {
				data, err := s.poolABI.Pack(method)
				if err != nil {
					s.logger.Error("pack pool call", zap.String("method", method), zap.Error(err))
					return pools
				}
				reqs = append(reqs, chain.CallRequest{To: addr, Data: data})
			}
		}
		results, err := s.batchCall(ctx, reqs)
		if err != nil {
			s.logger.Warn("pool state batch failed", zap.Error(err))
			for _, addr := range batch {
				skip(addr.Hex(), model.ReasonDataUnavailable)
			}
			continue
		}

		for i, addr := range batch {
			group := results[i*len(poolCallMethods) : (i+1)*len(poolCallMethods)]
			var blobData []byte
			failed := false
			for _, res := range group {
				if res.Err != nil {
					failed = true
					break
				}
				blobData = append(blobData, res.Data...)
			}
			if failed {
				skip(addr.Hex(), model.ReasonDataUnavailable)
				continue
			}
			pool, err := s.decoder.DecodePoolState(model.RawAccountBlob{
				Protocol: model.ProtocolUniswapV3,
				Address:  addr.Hex(),
				Data:     blobData,
			})
			if err != nil {
				s.logger.Warn("pool decode failed", zap.String("pool", addr.Hex()), zap.Error(err))
				skip(addr.Hex(), skipReason(err))
				continue
			}
			pools[addr.Hex()] = pool
		}
	}
	return pools
}

// fillTokenMeta resolves ERC-20 decimals and symbols for every token the
// pools reference, caching metadata across scans. Pools with an unreadable
// token are dropped and their positions skipped; valuing against a guessed
// decimal count would corrupt the amounts.
func (s *UniswapScanner) fillTokenMeta(
	ctx context.Context,
	pools map[string]model.PoolState,
	skip func(poolID string, reason model.ReasonCode),
) {
	var tokens []string
	seen := make(map[string]bool)
	for _, pool := range pools {
		for _, token := range []string{pool.Token0, pool.Token1} {
			if seen[token] {
				continue
			}
			seen[token] = true
			if _, ok := s.tokenMeta.Get(token); !ok {
				tokens = append(tokens, token)
			}
		}
	}

	decimalsData, err := s.erc20ABI.Pack("decimals")
	if err != nil {
		s.logger.Error("pack decimals", zap.Error(err))
		return
	}
	symbolData, err := s.erc20ABI.Pack("symbol")
	if err != nil {
		s.logger.Error("pack symbol", zap.Error(err))
		return
	}

	tokensPerBatch := s.cfg.BatchSize / 2
	if tokensPerBatch < 1 {
		tokensPerBatch = 1
	}
	for _, batch := range splitChunks(tokens, tokensPerBatch) {
		reqs := make([]chain.CallRequest, 0, len(batch)*2)
		for _, token := range batch {
			addr := common.HexToAddress(token)
			reqs = append(reqs,
				chain.CallRequest{To: addr, Data: decimalsData},
				chain.CallRequest{To: addr, Data: symbolData})
		}
		results, err := s.batchCall(ctx, reqs)
		if err != nil {
			s.logger.Warn("token metadata batch failed", zap.Error(err))
			continue
		}
		for i, token := range batch {
			decRes := results[i*2]
			if decRes.Err != nil {
				s.logger.Warn("decimals lookup failed", zap.String("token", token), zap.Error(decRes.Err))
				continue
			}
			values, err := s.erc20ABI.Unpack("decimals", decRes.Data)
			if err != nil || len(values) != 1 {
				continue
			}
			dec, ok := values[0].(uint8)
			if !ok {
				continue
			}
			s.tokenMeta.Set(token, model.TokenMeta{
				Address:  token,
				Decimals: dec,
				Symbol:   s.decodeSymbol(results[i*2+1]),
			})
		}
	}

	for poolID, pool := range pools {
		meta0, ok0 := s.tokenMeta.Get(pool.Token0)
		meta1, ok1 := s.tokenMeta.Get(pool.Token1)
		if !ok0 || !ok1 {
			skip(poolID, model.ReasonDataUnavailable)
			delete(pools, poolID)
			continue
		}
		pool.Decimals0 = meta0.Decimals
		pool.Decimals1 = meta1.Decimals
		pools[poolID] = pool
	}
}

// decodeSymbol tolerates both string and bytes32 symbol implementations. A
// missing symbol is not fatal; only decimals gate valuation.
func (s *UniswapScanner) decodeSymbol(res chain.CallResult) string {
	if res.Err != nil || len(res.Data) == 0 {
		return ""
	}
	if values, err := s.erc20ABI.Unpack("symbol", res.Data); err == nil && len(values) == 1 {
		if symbol, ok := values[0].(string); ok {
			return symbol
		}
	}
	if values, err := s.erc20B32ABI.Unpack("symbol", res.Data); err == nil && len(values) == 1 {
		if symbol, ok := bytes32ToString(values[0]); ok {
			return symbol
		}
	}
	return ""
}

// batchCall issues reqs in one batch, retrying whole-batch transport
// failures and then individual slots whose error classifies transient. A
// rate-limited element inside an otherwise healthy batch gets re-issued
// instead of surfacing as unavailable.
func (s *UniswapScanner) batchCall(ctx context.Context, reqs []chain.CallRequest) ([]chain.CallResult, error) {
	var results []chain.CallResult
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.BaseDelay, func(ctx context.Context) error {
		var err error
		results, err = s.client.BatchCall(ctx, reqs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := s.retryTransientSlots(ctx, reqs, results); err != nil {
		return nil, err
	}
	return results, nil
}

// retryTransientSlots re-issues batch slots that came back with a transient
// error, backing off between rounds. Slots still failing after the retry
// budget keep their last error for the caller to classify.
func (s *UniswapScanner) retryTransientSlots(ctx context.Context, reqs []chain.CallRequest, results []chain.CallResult) error {
	pending := transientSlots(results)
	if len(pending) == 0 {
		return nil
	}

	delay := s.cfg.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; attempt < s.cfg.MaxRetries && len(pending) > 0; attempt++ {
		if err := backoffWait(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay)

		sub := make([]chain.CallRequest, len(pending))
		for i, idx := range pending {
			sub[i] = reqs[idx]
		}
		subResults, err := s.client.BatchCall(ctx, sub)
		if err != nil {
			if model.IsTransientRPC(err) {
				continue
			}
			return err
		}
		for i, idx := range pending {
			results[idx] = subResults[i]
		}
		pending = transientSlots(results)
	}
	return nil
}

func transientSlots(results []chain.CallResult) []int {
	var slots []int
	for i, res := range results {
		if res.Err != nil && model.IsTransientRPC(res.Err) {
			slots = append(slots, i)
		}
	}
	return slots
}
