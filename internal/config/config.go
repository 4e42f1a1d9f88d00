package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default mainnet deployment of the Uniswap V3 position manager and factory.
const (
	DefaultPositionManager = "0xC36442b4a4522E871399CD717aBDD847Ab11FE88"
	DefaultFactory         = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	SolanaRPCURL    string
	EthereumRPCURL  string
	SolanaWallets   []string
	EthereumWallets []string

	PositionManager string
	Factory         string

	PriceBaseURL    string
	SolanaNetwork   string
	EthereumNetwork string
	PriceTTL        time.Duration

	PageSize     int
	BatchSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
	SolanaRPS    float64

	Out      string
	PGDSN    string
	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("position-manager", DefaultPositionManager)
	v.SetDefault("factory", DefaultFactory)
	v.SetDefault("solana-network", "solana")
	v.SetDefault("ethereum-network", "eth")
	v.SetDefault("price-ttl", time.Minute)
	v.SetDefault("page-size", 100)
	v.SetDefault("batch-size", 100)
	v.SetDefault("workers", 4)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("call-timeout", 15*time.Second)
	v.SetDefault("solana-rps", 10.0)
	v.SetDefault("out", "./data/positions.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		SolanaRPCURL:    v.GetString("solana-rpc"),
		EthereumRPCURL:  v.GetString("ethereum-rpc"),
		SolanaWallets:   getStringSlice(v, "solana-wallet"),
		EthereumWallets: getStringSlice(v, "ethereum-wallet"),
		PositionManager: v.GetString("position-manager"),
		Factory:         v.GetString("factory"),
		PriceBaseURL:    v.GetString("price-base-url"),
		SolanaNetwork:   v.GetString("solana-network"),
		EthereumNetwork: v.GetString("ethereum-network"),
		PriceTTL:        v.GetDuration("price-ttl"),
		PageSize:        v.GetInt("page-size"),
		BatchSize:       v.GetInt("batch-size"),
		Workers:         v.GetInt("workers"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		CallTimeout:     v.GetDuration("call-timeout"),
		SolanaRPS:       v.GetFloat64("solana-rps"),
		Out:             v.GetString("out"),
		PGDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks that at least one chain is fully configured.
func (c Config) Validate() error {
	solana := len(c.SolanaWallets) > 0
	ethereum := len(c.EthereumWallets) > 0
	if !solana && !ethereum {
		return fmt.Errorf("at least one wallet is required")
	}
	if solana && c.SolanaRPCURL == "" {
		return fmt.Errorf("solana-rpc is required when solana wallets are set")
	}
	if ethereum && c.EthereumRPCURL == "" {
		return fmt.Errorf("ethereum-rpc is required when ethereum wallets are set")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
