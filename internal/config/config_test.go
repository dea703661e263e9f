package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
exchange:
  name: bybit
  api_key: ${FOLLOWER_TEST_KEY}
  api_secret: "pa$$word"
  stream: true
  stream_max_age: 15s
follow:
  agent: gpt-5
  plans_path: plans.json
  interval: 1m
  symbols: [BTCUSDT, ETHUSDT]
  price_tolerance: 2.5
  max_overshoot_pct: 100
  risk_only: true
ledger:
  backend: redis
redis:
  addr: 127.0.0.1:6379
  locking: true
kafka:
  brokers: [localhost:9092]
server:
  port: 8080
logging:
  level: debug
  file: logs/follower.log
`

func TestParse(t *testing.T) {
	t.Setenv("FOLLOWER_TEST_KEY", "k-123")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, ExchangeBybit, cfg.Exchange.Name)
	assert.Equal(t, "k-123", cfg.Exchange.APIKey)
	assert.Equal(t, "pa$$word", cfg.Exchange.APISecret)
	assert.Equal(t, 15*time.Second, cfg.Exchange.StreamMaxAge)
	assert.Equal(t, time.Minute, cfg.Follow.Interval)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Follow.Symbols)
	assert.Equal(t, 2.5, cfg.Follow.PriceTolerance)
	assert.True(t, cfg.Follow.RiskOnly)
	assert.Equal(t, LedgerRedis, cfg.Ledger.Backend)
	assert.True(t, cfg.Redis.Locking)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "logs/follower.log", cfg.Logging.File)

	// defaults
	assert.Equal(t, 0.2, cfg.Follow.MarginFraction)
	assert.Equal(t, 4, cfg.Follow.Concurrency)
	assert.Equal(t, 50.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, "follower.outcomes", cfg.Kafka.Topic)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("follow:\n  plans_path: p.json\n"))
	require.NoError(t, err)
	assert.Equal(t, ExchangeBinance, cfg.Exchange.Name)
	assert.Equal(t, LedgerSQLite, cfg.Ledger.Backend)
	assert.Equal(t, "data/ledger.db", cfg.Ledger.SQLitePath)
	assert.Equal(t, 1.0, cfg.Follow.PriceTolerance)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Zero(t, cfg.Follow.Interval)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown exchange":   "exchange: {name: kraken}\nfollow: {plans_path: p}",
		"redis ledger":       "ledger: {backend: redis}\nfollow: {plans_path: p}",
		"locking":            "redis: {locking: true}\nfollow: {plans_path: p}",
		"missing plans":      "exchange: {name: binance}",
		"negative tolerance": "follow: {plans_path: p, price_tolerance: -1}",
		"fraction":           "follow: {plans_path: p, margin_fraction: 1.5}",
		"bad yaml":           "follow: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("follow:\n  plans_path: p.json\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "p.json", cfg.Follow.PlansPath)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
