package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/vitos/copy_follower/internal/infrastructure/logger"
	"gopkg.in/yaml.v3"
)

const (
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"

	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
	LedgerNone   = "none"
)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Follow   FollowConfig   `yaml:"follow"`
	Risk     RiskConfig     `yaml:"risk"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Server   struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Logging logger.Config `yaml:"logging"`
}

type ExchangeConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	// Stream enables the websocket price cache for Symbols.
	Stream       bool          `yaml:"stream"`
	StreamMaxAge time.Duration `yaml:"stream_max_age"`
}

type FollowConfig struct {
	Agent     string `yaml:"agent"`
	PlansPath string `yaml:"plans_path"`
	// Interval between passes; zero runs a single pass.
	Interval        time.Duration `yaml:"interval"`
	Symbols         []string      `yaml:"symbols"`
	PriceTolerance  float64       `yaml:"price_tolerance"`
	MarginFraction  float64       `yaml:"margin_fraction"`
	MaxOvershootPct float64       `yaml:"max_overshoot_pct"`
	RiskOnly        bool          `yaml:"risk_only"`
	Concurrency     int           `yaml:"concurrency"`
	LotCacheTTL     time.Duration `yaml:"lot_cache_ttl"`
}

type RiskConfig struct {
	MaxLeverage     float64 `yaml:"max_leverage"`
	WarnLeverage    float64 `yaml:"warn_leverage"`
	MaxNotionalUSDT float64 `yaml:"max_notional_usdt"`
}

type LedgerConfig struct {
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Locking shares per-symbol plan locks between follower processes.
	Locking bool          `yaml:"locking"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} with the environment value. Bare $ is left
// alone so secrets may contain it.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(m)[1])))
	})
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Name == "" {
		c.Exchange.Name = ExchangeBinance
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerSQLite
	}
	if c.Ledger.Backend == LedgerSQLite && c.Ledger.SQLitePath == "" {
		c.Ledger.SQLitePath = "data/ledger.db"
	}
	if c.Follow.PriceTolerance == 0 {
		c.Follow.PriceTolerance = 1.0
	}
	if c.Follow.MarginFraction == 0 {
		c.Follow.MarginFraction = 0.2
	}
	if c.Follow.Concurrency == 0 {
		c.Follow.Concurrency = 4
	}
	if c.Follow.LotCacheTTL == 0 {
		c.Follow.LotCacheTTL = 10 * time.Minute
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = 50
	}
	if c.Risk.WarnLeverage == 0 {
		c.Risk.WarnLeverage = 20
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "follower.outcomes"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Exchange.Name {
	case ExchangeBinance, ExchangeBybit:
	default:
		return fmt.Errorf("config: unknown exchange %q", c.Exchange.Name)
	}
	switch c.Ledger.Backend {
	case LedgerSQLite, LedgerNone:
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: ledger backend redis needs redis.addr")
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Redis.Locking && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.locking needs redis.addr")
	}
	if c.Follow.PlansPath == "" {
		return fmt.Errorf("config: follow.plans_path is required")
	}
	if c.Follow.PriceTolerance < 0 {
		return fmt.Errorf("config: follow.price_tolerance must not be negative")
	}
	if c.Follow.MarginFraction < 0 || c.Follow.MarginFraction > 1 {
		return fmt.Errorf("config: follow.margin_fraction must be within (0, 1]")
	}
	if c.Follow.MaxOvershootPct < 0 {
		return fmt.Errorf("config: follow.max_overshoot_pct must not be negative")
	}
	return nil
}
