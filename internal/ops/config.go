package ops

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/yanun0323/errors"

	"orchestrator/internal/engine"
)

// Prefix is prepended to every environment variable.
const Prefix = "ENGINE_"

// Config is the process configuration, read from the environment.
type Config struct {
	// WSURL is the chain update stream, PrivateKey the base58 signing key.
	WSURL        string        `env:"WS_URL, required"`
	RPCURL       string        `env:"RPC_URL, default=https://api.mainnet-beta.solana.com"`
	PrivateKey   string        `env:"PRIVATE_KEY, required"`
	ListenAddr   string        `env:"LISTEN_ADDR, default=0.0.0.0:8080"`
	ReplyTimeout time.Duration `env:"REPLY_TIMEOUT, default=5s"`
	JWTSecret    string        `env:"JWT_SECRET, required"`

	Engine engine.Config
	Limits engine.Limits `env:",prefix=RISK_"`
	Market MarketConfig
	Chain  ChainConfig

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisPrefix   string `env:"REDIS_PREFIX, default=engine:pipeline:"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	PyroscopeAddr string `env:"PYROSCOPE_ADDR"`
}

// MarketConfig selects the quoted pair and refresh cadence.
type MarketConfig struct {
	PriceSymbol       string        `env:"PRICE_SYMBOL, default=solusdt"`
	BinanceRESTURL    string        `env:"BINANCE_REST_URL, default=https://api.binance.com"`
	BlockhashInterval time.Duration `env:"BLOCKHASH_INTERVAL, default=2s"`
}

// ChainConfig selects the program whose accounts are ingested. An empty
// ProgramID disables ingestion.
type ChainConfig struct {
	ProgramID       string        `env:"PROGRAM_ID"`
	DataSize        uint64        `env:"PROGRAM_DATA_SIZE"`
	ProcessorBudget time.Duration `env:"PROCESSOR_BUDGET, default=100ms"`
}

// Features are derived switches.
type Features struct {
	RedisStore bool
	Journal    bool
	Ingest     bool
	Profiling  bool
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration from l, applying Prefix.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(Prefix, l),
	}); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if cfg.ReplyTimeout <= 0 {
		return nil, errors.New("reply timeout must be > 0")
	}
	if cfg.Engine.QueueSize <= 0 {
		return nil, errors.New("queue size must be > 0")
	}
	if cfg.Engine.Workers <= 0 {
		return nil, errors.New("workers must be > 0")
	}
	return &cfg, nil
}

// Features resolves which optional components run.
func (c Config) Features() Features {
	return Features{
		RedisStore: c.RedisAddr != "",
		Journal:    c.PostgresDSN != "",
		Ingest:     c.Chain.ProgramID != "",
		Profiling:  c.PyroscopeAddr != "",
	}
}
