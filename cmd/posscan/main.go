package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"positionscope/internal/chain"
	"positionscope/internal/config"
	"positionscope/internal/fees"
	"positionscope/internal/pricing"
	"positionscope/internal/scanner"
	"positionscope/internal/storage"
	"positionscope/internal/storage/postgres"
	"positionscope/internal/valuator"
)

func main() {
	root := &cobra.Command{
		Use:          "posscan",
		Short:        "CLMM position scanner and valuation engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan wallets and value their liquidity positions",
		RunE:  runScan,
	}

	scanCmd.Flags().String("solana-rpc", "", "Solana RPC URL (DAS-enabled)")
	scanCmd.Flags().String("ethereum-rpc", "", "Ethereum RPC URL")
	scanCmd.Flags().StringSlice("solana-wallet", nil, "Solana wallet addresses (comma-separated)")
	scanCmd.Flags().StringSlice("ethereum-wallet", nil, "Ethereum wallet addresses (comma-separated)")
	scanCmd.Flags().String("position-manager", config.DefaultPositionManager, "nonfungible position manager address")
	scanCmd.Flags().String("factory", config.DefaultFactory, "V3 factory address")
	scanCmd.Flags().String("price-base-url", "", "price API base URL override")
	scanCmd.Flags().String("solana-network", "solana", "price API network slug for Solana tokens")
	scanCmd.Flags().String("ethereum-network", "eth", "price API network slug for Ethereum tokens")
	scanCmd.Flags().Duration("price-ttl", time.Minute, "price cache TTL")
	scanCmd.Flags().Int("page-size", 100, "asset index page size")
	scanCmd.Flags().Int("batch-size", 100, "accounts or calls per RPC batch")
	scanCmd.Flags().Int("workers", 4, "concurrent wallet scans")
	scanCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	scanCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	scanCmd.Flags().Duration("call-timeout", 15*time.Second, "per-call RPC timeout")
	scanCmd.Flags().Float64("solana-rps", 10, "Solana RPC request rate cap")
	scanCmd.Flags().String("out", "./data/positions.jsonl", "output JSONL path")
	scanCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	scanCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(scanCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("scan start",
		zap.Int("solana_wallets", len(cfg.SolanaWallets)),
		zap.Int("ethereum_wallets", len(cfg.EthereumWallets)),
		zap.Int("workers", cfg.Workers),
		zap.String("out", cfg.Out))

	var result scanner.Result
	var scanErrs []error

	if len(cfg.SolanaWallets) > 0 {
		solScanner := buildRaydiumScanner(cfg, logger)
		solResult, err := scanner.ScanWallets(ctx, []scanner.WalletScanner{solScanner}, cfg.SolanaWallets, cfg.Workers)
		result.Positions = append(result.Positions, solResult.Positions...)
		result.Skipped = append(result.Skipped, solResult.Skipped...)
		if err != nil {
			scanErrs = append(scanErrs, err)
		}
	}

	if len(cfg.EthereumWallets) > 0 {
		ethScanner, closeClient, err := buildUniswapScanner(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeClient()

		ethResult, err := scanner.ScanWallets(ctx, []scanner.WalletScanner{ethScanner}, cfg.EthereumWallets, cfg.Workers)
		result.Positions = append(result.Positions, ethResult.Positions...)
		result.Skipped = append(result.Skipped, ethResult.Skipped...)
		if err != nil {
			scanErrs = append(scanErrs, err)
		}
	}

	if err := persist(ctx, cfg, result); err != nil {
		return err
	}

	logger.Info("scan done",
		zap.Int("positions", len(result.Positions)),
		zap.Int("skipped", len(result.Skipped)))

	if len(scanErrs) > 0 {
		logger.Warn("some wallets failed", zap.Error(errors.Join(scanErrs...)))
	}
	return nil
}

func buildRaydiumScanner(cfg config.Config, logger *zap.Logger) *scanner.RaydiumScanner {
	client := chain.NewSolanaClient(cfg.SolanaRPCURL, cfg.CallTimeout, cfg.SolanaRPS)
	prices := pricing.NewCache(
		pricing.NewGeckoTerminal(cfg.PriceBaseURL, cfg.SolanaNetwork, cfg.CallTimeout),
		cfg.PriceTTL,
	)
	val := valuator.New(fees.NewDirectRead(), logger)
	return scanner.NewRaydiumScanner(client, val, prices, scanner.RaydiumScannerConfig{
		PageSize:   cfg.PageSize,
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBackoff,
	}, logger)
}

func buildUniswapScanner(ctx context.Context, cfg config.Config, logger *zap.Logger) (*scanner.UniswapScanner, func(), error) {
	client, err := chain.DialEVM(ctx, cfg.EthereumRPCURL, cfg.CallTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ethereum rpc: %w", err)
	}

	manager := common.HexToAddress(cfg.PositionManager)
	factory := common.HexToAddress(cfg.Factory)

	feeStrategy, err := fees.NewSimulatedCollect(client, manager)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	prices := pricing.NewCache(
		pricing.NewGeckoTerminal(cfg.PriceBaseURL, cfg.EthereumNetwork, cfg.CallTimeout),
		cfg.PriceTTL,
	)
	val := valuator.New(feeStrategy, logger)

	s, err := scanner.NewUniswapScanner(client, manager, factory, val, prices, scanner.UniswapScannerConfig{
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBackoff,
	}, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return s, client.Close, nil
}

func persist(ctx context.Context, cfg config.Config, result scanner.Result) error {
	var sink storage.Storage = storage.NewJsonlStorage(cfg.Out)
	if err := sink.PutPositionBatch(result.Positions); err != nil {
		return err
	}
	if err := sink.PutSkippedBatch(result.Skipped); err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.UpsertPositions(ctx, result.Positions); err != nil {
			return fmt.Errorf("persist positions: %w", err)
		}
		if err := store.InsertSkipped(ctx, result.Skipped); err != nil {
			return fmt.Errorf("persist skipped: %w", err)
		}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
