package scanner

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"positionscope/internal/chain"
	"positionscope/internal/decoder"
	"positionscope/internal/model"
	"positionscope/internal/valuator"
)

// Position NFTs from the CLMM program all carry this asset name; the
// position account address rides in the metadata URI's id parameter.
const raydiumPositionAssetName = "Raydium Concentrated Liquidity"

// SolanaReader is the read surface the Raydium scanner needs. Satisfied by
// chain.SolanaClient.
type SolanaReader interface {
	GetAssetsByOwner(ctx context.Context, owner string, page, limit int) (chain.AssetPage, error)
	GetMultipleAccounts(ctx context.Context, addresses []string) ([][]byte, error)
}

// RaydiumScannerConfig tunes paging, batching and retry behavior.
type RaydiumScannerConfig struct {
	PageSize   int
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

// RaydiumScanner discovers a wallet's CLMM position NFTs through the DAS
// asset index, fetches the referenced accounts in batches and values them.
type RaydiumScanner struct {
	client   SolanaReader
	decoder  *decoder.RaydiumDecoder
	valuator *valuator.Valuator
	prices   valuator.PriceLookup
	logger   *zap.Logger
	cfg      RaydiumScannerConfig
}

// NewRaydiumScanner builds a scanner over the given Solana read client.
func NewRaydiumScanner(
	client SolanaReader,
	val *valuator.Valuator,
	prices valuator.PriceLookup,
	cfg RaydiumScannerConfig,
	logger *zap.Logger,
) *RaydiumScanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RaydiumScanner{
		client:   client,
		decoder:  decoder.NewRaydiumDecoder(),
		valuator: val,
		prices:   prices,
		logger:   logger,
		cfg:      cfg,
	}
}

func (s *RaydiumScanner) Protocol() model.Protocol { return model.ProtocolRaydiumCLMM }

// Scan values every CLMM position the wallet holds. Failures of a single
// position become SkippedPosition records; only wallet-wide discovery
// failures abort the scan.
func (s *RaydiumScanner) Scan(ctx context.Context, wallet string) (Result, error) {
	var result Result

	positionAddrs, err := s.discoverPositions(ctx, wallet)
	if err != nil {
		return result, err
	}
	if len(positionAddrs) == 0 {
		return result, nil
	}
	s.logger.Info("discovered positions",
		zap.String("wallet", wallet),
		zap.Int("count", len(positionAddrs)))

	positions := s.decodePositions(ctx, positionAddrs, &result)
	pools := s.fetchPools(ctx, positions, &result)
	s.resolveFeeTiers(ctx, pools)

	for _, pos := range positions {
		pool, ok := pools[pos.PoolID]
		if !ok {
			// Already skipped while fetching the pool.
			continue
		}
		record, err := s.valuator.ValuePosition(ctx, model.ProtocolRaydiumCLMM, model.ChainSolana, pos, pool, s.prices)
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

// discoverPositions pages through the wallet's assets until the reported
// total is reached or a short page ends the listing.
func (s *RaydiumScanner) discoverPositions(ctx context.Context, wallet string) ([]string, error) {
	var addrs []string
	seen := 0
	for page := 1; ; page++ {
		var assets chain.AssetPage
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.BaseDelay, func(ctx context.Context) error {
			var err error
			assets, err = s.client.GetAssetsByOwner(ctx, wallet, page, s.cfg.PageSize)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, asset := range assets.Items {
			if asset.Name != raydiumPositionAssetName {
				continue
			}
			addr, ok := positionAddressFromURI(asset.JSONURI)
			if !ok {
				s.logger.Warn("position asset without account reference",
					zap.String("asset", asset.ID),
					zap.String("uri", asset.JSONURI))
				continue
			}
			addrs = append(addrs, addr)
		}

		seen += len(assets.Items)
		if assets.Total > 0 && seen >= assets.Total {
			break
		}
		if len(assets.Items) < s.cfg.PageSize {
			break
		}
	}
	return addrs, nil
}

func (s *RaydiumScanner) decodePositions(ctx context.Context, addrs []string, result *Result) []model.PositionState {
	positions := make([]model.PositionState, 0, len(addrs))
	for _, batch := range splitChunks(addrs, s.cfg.BatchSize) {
		accounts, err := s.fetchAccounts(ctx, batch)
		if err != nil {
			s.logger.Warn("position batch fetch failed", zap.Error(err))
			for _, addr := range batch {
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: addr,
					ReasonCode: model.ReasonDataUnavailable,
				})
			}
			continue
		}
		for i, data := range accounts {
			addr := batch[i]
			if data == nil {
				// A nil element means the account does not exist (closed or
				// never created). That is definitive, not transient; only
				// whole-batch transport failures are retried.
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: addr,
					ReasonCode: model.ReasonDataUnavailable,
				})
				continue
			}
			pos, err := s.decoder.DecodePositionState(model.RawAccountBlob{
				Protocol: model.ProtocolRaydiumCLMM,
				Address:  addr,
				Data:     data,
			})
			if err != nil {
				s.logger.Warn("position decode failed", zap.String("position", addr), zap.Error(err))
				result.Skipped = append(result.Skipped, model.SkippedPosition{
					PositionID: addr,
					ReasonCode: skipReason(err),
				})
				continue
			}
			positions = append(positions, pos)
		}
	}
	return positions
}

// fetchPools loads and decodes the distinct pools the positions reference.
// Positions whose pool cannot be loaded are skipped here.
func (s *RaydiumScanner) fetchPools(ctx context.Context, positions []model.PositionState, result *Result) map[string]model.PoolState {
	byPool := make(map[string][]string)
	var poolAddrs []string
	for _, pos := range positions {
		if _, ok := byPool[pos.PoolID]; !ok {
			poolAddrs = append(poolAddrs, pos.PoolID)
		}
		byPool[pos.PoolID] = append(byPool[pos.PoolID], pos.PositionID)
	}

	skipPool := func(poolID string, reason model.ReasonCode) {
		for _, positionID := range byPool[poolID] {
			result.Skipped = append(result.Skipped, model.SkippedPosition{
				PositionID: positionID,
				ReasonCode: reason,
			})
		}
	}

	pools := make(map[string]model.PoolState, len(poolAddrs))
	for _, batch := range splitChunks(poolAddrs, s.cfg.BatchSize) {
		accounts, err := s.fetchAccounts(ctx, batch)
		if err != nil {
			s.logger.Warn("pool batch fetch failed", zap.Error(err))
			for _, addr := range batch {
				skipPool(addr, model.ReasonDataUnavailable)
			}
			continue
		}
		for i, data := range accounts {
			addr := batch[i]
			if data == nil {
				skipPool(addr, model.ReasonDataUnavailable)
				continue
			}
			pool, err := s.decoder.DecodePoolState(model.RawAccountBlob{
				Protocol: model.ProtocolRaydiumCLMM,
				Address:  addr,
				Data:     data,
			})
			if err != nil {
				s.logger.Warn("pool decode failed", zap.String("pool", addr), zap.Error(err))
				skipPool(addr, skipReason(err))
				continue
			}
			pools[addr] = pool
		}
	}
	return pools
}

// resolveFeeTiers fills pool fee tiers from their fee config accounts. The
// fee tier is informational; a failed lookup leaves it unset rather than
// skipping the pool.
func (s *RaydiumScanner) resolveFeeTiers(ctx context.Context, pools map[string]model.PoolState) {
	byConfig := make(map[string][]string)
	var configAddrs []string
	for poolID, pool := range pools {
		if pool.AmmConfig == "" {
			continue
		}
		if _, ok := byConfig[pool.AmmConfig]; !ok {
			configAddrs = append(configAddrs, pool.AmmConfig)
		}
		byConfig[pool.AmmConfig] = append(byConfig[pool.AmmConfig], poolID)
	}

	for _, batch := range splitChunks(configAddrs, s.cfg.BatchSize) {
		accounts, err := s.fetchAccounts(ctx, batch)
		if err != nil {
			s.logger.Warn("fee config fetch failed", zap.Error(err))
			continue
		}
		for i, data := range accounts {
			addr := batch[i]
			if data == nil {
				continue
			}
			cfg, err := s.decoder.DecodeAmmConfig(model.RawAccountBlob{
				Protocol: model.ProtocolRaydiumCLMM,
				Address:  addr,
				Data:     data,
			})
			if err != nil {
				s.logger.Warn("fee config decode failed", zap.String("config", addr), zap.Error(err))
				continue
			}
			for _, poolID := range byConfig[addr] {
				pool := pools[poolID]
				pool.FeeTier = cfg.TradeFeeRate
				pools[poolID] = pool
			}
		}
	}
}

func (s *RaydiumScanner) fetchAccounts(ctx context.Context, addrs []string) ([][]byte, error) {
	var accounts [][]byte
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.BaseDelay, func(ctx context.Context) error {
		var err error
		accounts, err = s.client.GetMultipleAccounts(ctx, addrs)
		return err
	})
	return accounts, err
}

// positionAddressFromURI extracts the position account address from an
// asset metadata URI of the form .../position?id=<address>.
func positionAddressFromURI(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	id := parsed.Query().Get("id")
	return id, id != ""
}
