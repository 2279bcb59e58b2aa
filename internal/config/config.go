// Package config loads the solver's runtime configuration from environment
// variables (optionally via a .env file) in the style of the teacher's
// params.LoadFromEnv, plus a pflag-based CLI surface for the pieces that
// only make sense as command-line overrides (config loading is explicitly a
// cmd/ boundary concern, not something the core packages import).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config is the solver's full runtime configuration.
type Config struct {
	RPCURL                string
	ChainID               int64
	ArbContract           common.Address
	SignerKeyFiles        []string
	GasCoveragePercentage string
	RotationLimit         int
	Workers               int
	PollIntervalPerSecond float64
	ReceiptTimeout        time.Duration
	GasLimitHeadroomPct   uint64
	PoolBlacklist         []common.Address
	SubgraphURLs          []string
	IndexerPageSize       int
	HistoryDBPath         string
	StatusAPIAddr         string
	TelegramBotToken      string
	TelegramChatID        string
}

// Default returns the solver's baked-in defaults, overridden by Load.
func Default() Config {
	return Config{
		RPCURL:                "http://127.0.0.1:8545",
		ChainID:               42161,
		GasCoveragePercentage: "0",
		RotationLimit:         4,
		Workers:               4,
		PollIntervalPerSecond: 2,
		ReceiptTimeout:        90 * time.Second,
		GasLimitHeadroomPct:   20,
		IndexerPageSize:       100,
		HistoryDBPath:         "data/history",
		StatusAPIAddr:         ":8090",
	}
}

// Load reads envPath (optional, defaults to ./.env) and environment
// variables over Default(). Priority: ENV > .env file > defaults, mirroring
// params.LoadFromEnv. Load registers no flags; BindFlags does that, and
// flags parsed after it override what Load produced.
func Load(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}
	if v := os.Getenv("ARB_CONTRACT"); v != "" && common.IsHexAddress(v) {
		cfg.ArbContract = common.HexToAddress(v)
	}
	if v := os.Getenv("SIGNER_KEY_FILES"); v != "" {
		cfg.SignerKeyFiles = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("GAS_COVERAGE_PERCENTAGE"); v != "" {
		cfg.GasCoveragePercentage = v
	}
	if v := os.Getenv("ROTATION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RotationLimit = n
		}
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PollIntervalPerSecond = f
		}
	}
	if v := os.Getenv("RECEIPT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReceiptTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("GAS_LIMIT_HEADROOM_PERCENT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.GasLimitHeadroomPct = n
		}
	}
	if v := os.Getenv("POOL_BLACKLIST"); v != "" {
		for _, a := range splitNonEmpty(v, ",") {
			if common.IsHexAddress(a) {
				cfg.PoolBlacklist = append(cfg.PoolBlacklist, common.HexToAddress(a))
			}
		}
	}
	if v := os.Getenv("SUBGRAPHS"); v != "" {
		cfg.SubgraphURLs = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("INDEXER_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IndexerPageSize = n
		}
	}
	if v := os.Getenv("HISTORY_DB_PATH"); v != "" {
		cfg.HistoryDBPath = v
	}
	if v := os.Getenv("STATUS_API_ADDR"); v != "" {
		cfg.StatusAPIAddr = v
	}
	if v := os.Getenv("TG_TOKEN"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		cfg.TelegramChatID = v
	}

	return cfg
}

// BindFlags registers pflag long flags for every override an operator might
// want on the command line, backed by the already-loaded cfg as defaults.
// Call pflag.Parse() after BindFlags to apply CLI overrides.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "JSON-RPC endpoint")
	fs.Int64Var(&cfg.ChainID, "chain-id", cfg.ChainID, "chain id")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "scheduler worker count")
	fs.IntVar(&cfg.RotationLimit, "rotation-limit", cfg.RotationLimit, "per-owner pair rotation limit")
	fs.Float64Var(&cfg.PollIntervalPerSecond, "poll-rate", cfg.PollIntervalPerSecond, "scheduler draws per second")
	fs.StringVar(&cfg.StatusAPIAddr, "status-addr", cfg.StatusAPIAddr, "status API listen address")
	fs.StringVar(&cfg.HistoryDBPath, "history-db", cfg.HistoryDBPath, "history pebble db path")
	fs.StringVar(&cfg.GasCoveragePercentage, "gas-coverage-percentage", cfg.GasCoveragePercentage, "\"0\" disables the eth-price hard requirement")
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
