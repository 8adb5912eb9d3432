package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"promogate/models"
)

// ChainConfig describes one settlement ledger the platform accepts payment on.
type ChainConfig struct {
	Collector        string `toml:"collector"`
	RPCURL           string `toml:"rpc"`
	MinConfirmations int    `toml:"min_confirmations"`
}

// Config represents runtime configuration for the promotion gateway service.
type Config struct {
	ListenAddress    string
	DatabaseURL      string
	ScanInterval     time.Duration
	ErrorBackoff     time.Duration
	PaymentDeadline  time.Duration
	TolerancePercent float64
	PriceFeedURL     string
	PriceCacheTTL    time.Duration
	EVMMaxBlocks     uint64
	ChainTxLimit     int
	RPCTimeout       time.Duration
	Chains           map[models.Chain]ChainConfig
}

// collectorEnv and rpcEnv name the per-chain environment variables.
var collectorEnv = map[models.Chain]string{
	models.ChainSolana:   "PROMO_FEE_COLLECTOR_SOL",
	models.ChainEthereum: "PROMO_FEE_COLLECTOR_ETH",
	models.ChainPolygon:  "PROMO_FEE_COLLECTOR_MATIC",
	models.ChainXRP:      "PROMO_FEE_COLLECTOR_XRP",
}

var rpcEnv = map[models.Chain]string{
	models.ChainSolana:   "SOLANA_RPC_MAINNET",
	models.ChainEthereum: "ETHEREUM_RPC_MAINNET",
	models.ChainPolygon:  "POLYGON_RPC_MAINNET",
	models.ChainXRP:      "XRPL_RPC_MAINNET",
}

var confirmationsEnv = map[models.Chain]string{
	models.ChainSolana:   "PROMO_MIN_CONFIRMATIONS_SOL",
	models.ChainEthereum: "PROMO_MIN_CONFIRMATIONS_EVM",
	models.ChainPolygon:  "PROMO_MIN_CONFIRMATIONS_EVM",
	models.ChainXRP:      "PROMO_MIN_CONFIRMATIONS_XRP",
}

var defaultConfirmations = map[models.Chain]int{
	models.ChainSolana:   1,
	models.ChainEthereum: 3,
	models.ChainPolygon:  3,
	models.ChainXRP:      1,
}

// FromEnv loads configuration from environment variables. A chain table may
// alternatively be supplied as a TOML file via PROMO_CHAINS_FILE; either way
// every enabled chain must carry both a collector address and an RPC URL or
// startup fails.
func FromEnv() (*Config, error) {
	dbURL := strings.TrimSpace(os.Getenv("PROMO_DB_URL"))
	if dbURL == "" {
		return nil, fmt.Errorf("PROMO_DB_URL is required")
	}

	cfg := &Config{
		ListenAddress:    getEnvDefault("PROMO_LISTEN", ":8080"),
		DatabaseURL:      dbURL,
		ScanInterval:     time.Duration(parseIntEnv("PROMO_SCAN_INTERVAL_SECONDS", 45)) * time.Second,
		ErrorBackoff:     time.Duration(parseIntEnv("PROMO_ERROR_BACKOFF_SECONDS", 60)) * time.Second,
		PaymentDeadline:  time.Duration(parseIntEnv("PROMO_PAYMENT_DEADLINE_HOURS", 2)) * time.Hour,
		TolerancePercent: parseFloatEnv("PROMO_AMOUNT_TOLERANCE_PERCENT", 1.0),
		PriceFeedURL:     strings.TrimSpace(os.Getenv("PROMO_PRICE_FEED_URL")),
		PriceCacheTTL:    time.Duration(parseIntEnv("PROMO_PRICE_CACHE_TTL_SECONDS", 60)) * time.Second,
		EVMMaxBlocks:     uint64(parseIntEnv("PROMO_EVM_MAX_BLOCKS", 1000)),
		ChainTxLimit:     parseIntEnv("PROMO_CHAIN_TX_LIMIT", 50),
		RPCTimeout:       time.Duration(parseIntEnv("PROMO_RPC_TIMEOUT_SECONDS", 15)) * time.Second,
	}
	if cfg.ScanInterval <= 0 {
		return nil, fmt.Errorf("invalid PROMO_SCAN_INTERVAL_SECONDS")
	}
	if cfg.PaymentDeadline <= 0 {
		return nil, fmt.Errorf("invalid PROMO_PAYMENT_DEADLINE_HOURS")
	}
	if cfg.TolerancePercent <= 0 {
		return nil, fmt.Errorf("invalid PROMO_AMOUNT_TOLERANCE_PERCENT")
	}

	chains, err := loadChains()
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("no payment chains configured")
	}
	cfg.Chains = chains

	return cfg, nil
}

func loadChains() (map[models.Chain]ChainConfig, error) {
	if path := strings.TrimSpace(os.Getenv("PROMO_CHAINS_FILE")); path != "" {
		return loadChainsFile(path)
	}
	chains := make(map[models.Chain]ChainConfig)
	for _, chain := range models.Chains() {
		collector := strings.TrimSpace(os.Getenv(collectorEnv[chain]))
		rpcURL := strings.TrimSpace(os.Getenv(rpcEnv[chain]))
		if collector == "" && rpcURL == "" {
			continue
		}
		if collector == "" {
			return nil, fmt.Errorf("%s is required for chain %s", collectorEnv[chain], chain)
		}
		if rpcURL == "" {
			return nil, fmt.Errorf("%s is required for chain %s", rpcEnv[chain], chain)
		}
		chains[chain] = ChainConfig{
			Collector:        collector,
			RPCURL:           rpcURL,
			MinConfirmations: parseIntEnv(confirmationsEnv[chain], defaultConfirmations[chain]),
		}
	}
	return chains, nil
}

func loadChainsFile(path string) (map[models.Chain]ChainConfig, error) {
	var file struct {
		Chains map[string]ChainConfig `toml:"chains"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode chains file %s: %w", path, err)
	}
	chains := make(map[models.Chain]ChainConfig, len(file.Chains))
	for name, entry := range file.Chains {
		chain := models.Chain(strings.ToLower(strings.TrimSpace(name)))
		if !chain.Valid() {
			return nil, fmt.Errorf("chains file: unsupported chain %q", name)
		}
		if strings.TrimSpace(entry.Collector) == "" {
			return nil, fmt.Errorf("chains file: collector required for chain %s", chain)
		}
		if strings.TrimSpace(entry.RPCURL) == "" {
			return nil, fmt.Errorf("chains file: rpc required for chain %s", chain)
		}
		if entry.MinConfirmations <= 0 {
			entry.MinConfirmations = defaultConfirmations[chain]
		}
		chains[chain] = entry
	}
	return chains, nil
}

// Collector returns the collector address for a chain, if configured.
func (c *Config) Collector(chain models.Chain) (string, bool) {
	entry, ok := c.Chains[chain]
	if !ok {
		return "", false
	}
	return entry.Collector, true
}

func getEnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloatEnv(key string, def float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return def
}
