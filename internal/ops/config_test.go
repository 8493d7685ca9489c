package ops

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func required() map[string]string {
	return map[string]string{
		"ENGINE_WS_URL":      "wss://chain.example",
		"ENGINE_PRIVATE_KEY": "key",
		"ENGINE_JWT_SECRET":  "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.Context(), envconfig.MapLookuper(required()))
	require.NoError(t, err)

	assert.Equal(t, "wss://chain.example", cfg.WSURL)
	assert.Equal(t, 5*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 1000, cfg.Engine.QueueSize)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, "solusdt", cfg.Market.PriceSymbol)
	assert.Equal(t, 100*time.Millisecond, cfg.Chain.ProcessorBudget)
	assert.Equal(t, 16, cfg.Limits.MaxSteps)
	assert.Equal(t, "engine:pipeline:", cfg.RedisPrefix)
	assert.Equal(t, Features{}, cfg.Features())
}

func TestLoadOverrides(t *testing.T) {
	env := required()
	env["ENGINE_QUEUE_SIZE"] = "10"
	env["ENGINE_RISK_KILL_SWITCH"] = "true"
	env["ENGINE_RISK_MAX_PRICE_DEVIATION_BPS"] = "500"
	env["ENGINE_PROGRAM_ID"] = "TSWAPaqyCSx2KABk68Shruf4rp7CxcNi8hAsbdwmHbN"
	env["ENGINE_REDIS_ADDR"] = "localhost:6379"
	env["ENGINE_REDIS_PREFIX"] = "staging:pipeline:"

	cfg, err := LoadFrom(t.Context(), envconfig.MapLookuper(env))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Engine.QueueSize)
	assert.True(t, cfg.Limits.KillSwitch)
	assert.Equal(t, "staging:pipeline:", cfg.RedisPrefix)
	assert.Equal(t, int64(500), cfg.Limits.MaxPriceDeviationBps)
	assert.Equal(t, Features{RedisStore: true, Ingest: true}, cfg.Features())
}

func TestLoadMissingRequired(t *testing.T) {
	for _, key := range []string{"ENGINE_WS_URL", "ENGINE_PRIVATE_KEY", "ENGINE_JWT_SECRET"} {
		env := required()
		delete(env, key)
		_, err := LoadFrom(t.Context(), envconfig.MapLookuper(env))
		assert.Error(t, err, key)
	}

	env := required()
	env["ENGINE_WORKERS"] = "0"
	_, err := LoadFrom(t.Context(), envconfig.MapLookuper(env))
	assert.Error(t, err)
}
