package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"arbscan/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// EnvPrefix prefixes every scanner-level environment override.
	EnvPrefix = "ARBSCAN_"
)

// ExchangeConfig configures one venue.
type ExchangeConfig struct {
	ID         string            `yaml:"id"`
	Market     string            `yaml:"market"`
	RestURL    string            `yaml:"rest_url"`
	Symbols    map[string]string `yaml:"symbols"` // asset -> venue instrument, overrides the default mapping
	AccessKey  string            `yaml:"access_key"`
	SecretKey  string            `yaml:"secret_key"`
	Passphrase string            `yaml:"passphrase"`
}

// Venue returns the parsed venue. Call after Validate.
func (e ExchangeConfig) Venue() domain.Venue {
	m, _ := domain.ParseMarketType(e.Market)
	return domain.Venue{Exchange: strings.ToLower(e.ID), Market: m}
}

// FeeConfig is one row of the fee schedule.
type FeeConfig struct {
	Exchange string          `yaml:"exchange"`
	Market   string          `yaml:"market"`
	Taker    decimal.Decimal `yaml:"taker"`
	Maker    decimal.Decimal `yaml:"maker"`
}

// Config는 스캐너의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Scanner struct {
		Assets               []string        `yaml:"assets"`
		IntervalSec          int             `yaml:"interval_sec"`
		NotionalUSD          decimal.Decimal `yaml:"notional_usd"`
		MinProfitPercent     decimal.Decimal `yaml:"min_profit_percent"`
		ThresholdInclusive   bool            `yaml:"threshold_inclusive"`
		AllowCrossMarket     bool            `yaml:"allow_cross_market"`
		FetchTimeoutMS       int             `yaml:"fetch_timeout_ms"`
		MaxConcurrentFetches int             `yaml:"max_concurrent_fetches"` // 0 = one goroutine per venue
		MaxRetries           int             `yaml:"max_retries"`
		FeeBasis             struct {
			Buy  string `yaml:"buy"`
			Sell string `yaml:"sell"`
		} `yaml:"fee_basis"`
	} `yaml:"scanner"`

	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Fees      []FeeConfig      `yaml:"fees"`

	Output struct {
		OpportunityLog    string `yaml:"opportunity_log"`
		ActivityLog       string `yaml:"activity_log"`
		ActivityMaxSizeMB int    `yaml:"activity_max_size_mb"`
	} `yaml:"output"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"` // sqlite | postgres
		DSN     string `yaml:"dsn"`
	} `yaml:"storage"`

	Redis struct {
		Enabled      bool   `yaml:"enabled"`
		Addr         string `yaml:"addr"`
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		Channel      string `yaml:"channel"`
		Stream       string `yaml:"stream"`
		StreamMaxLen int64  `yaml:"stream_max_len"`
	} `yaml:"redis"`

	Server struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the built-in defaults. LoadConfig decodes the file on
// top of it, so any key left out of the file keeps its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "arbscan"
	cfg.App.Version = "dev"

	cfg.Scanner.Assets = []string{"BTC", "ETH", "SOL", "XRP"}
	cfg.Scanner.IntervalSec = 15
	cfg.Scanner.NotionalUSD = decimal.NewFromInt(1000)
	cfg.Scanner.MinProfitPercent = decimal.Zero
	cfg.Scanner.AllowCrossMarket = true
	cfg.Scanner.FetchTimeoutMS = 5000
	cfg.Scanner.MaxRetries = 2
	cfg.Scanner.FeeBasis.Buy = string(domain.LiquidityTaker)
	cfg.Scanner.FeeBasis.Sell = string(domain.LiquidityTaker)

	cfg.Exchanges = []ExchangeConfig{
		{ID: domain.ExchangeBinance, Market: string(domain.MarketPerpetual)},
		{ID: domain.ExchangeBybit, Market: string(domain.MarketPerpetual)},
		{ID: domain.ExchangeBitstamp, Market: string(domain.MarketSpot)},
	}
	cfg.Fees = []FeeConfig{
		{Exchange: domain.ExchangeBinance, Market: "perpetual", Taker: decimal.RequireFromString("0.0004"), Maker: decimal.RequireFromString("0.0002")},
		{Exchange: domain.ExchangeBinance, Market: "spot", Taker: decimal.RequireFromString("0.001"), Maker: decimal.RequireFromString("0.001")},
		{Exchange: domain.ExchangeBybit, Market: "perpetual", Taker: decimal.RequireFromString("0.0006"), Maker: decimal.RequireFromString("0.0001")},
		{Exchange: domain.ExchangeBybit, Market: "spot", Taker: decimal.RequireFromString("0.001"), Maker: decimal.RequireFromString("0.001")},
		{Exchange: domain.ExchangeBitget, Market: "perpetual", Taker: decimal.RequireFromString("0.0006"), Maker: decimal.RequireFromString("0.0002")},
		{Exchange: domain.ExchangeBitget, Market: "spot", Taker: decimal.RequireFromString("0.001"), Maker: decimal.RequireFromString("0.001")},
		{Exchange: domain.ExchangeBitstamp, Market: "spot", Taker: decimal.RequireFromString("0.004"), Maker: decimal.RequireFromString("0.003")},
		{Exchange: domain.ExchangeUpbit, Market: "spot", Taker: decimal.RequireFromString("0.0025"), Maker: decimal.RequireFromString("0.0025")},
	}

	cfg.Output.OpportunityLog = "data/opportunities.ndjson"
	cfg.Output.ActivityLog = "data/activity.log"
	cfg.Output.ActivityMaxSizeMB = 50

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = "data/arbscan.db"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Channel = "arbscan:opportunities"
	cfg.Redis.Stream = "arbscan:opportunities:stream"
	cfg.Redis.StreamMaxLen = 10000

	cfg.Server.Addr = "localhost:8090"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// An empty path skips the file and uses the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &domain.ConfigError{Field: "path", Err: fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)}
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Field: "yaml", Err: err}
		}
	}

	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	// 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Interval returns the scan interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Scanner.IntervalSec) * time.Second
}

// FetchTimeout returns the per-venue fetch budget.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scanner.FetchTimeoutMS) * time.Millisecond
}

// FeeBasis returns the parsed per-leg liquidity. Call after Validate.
func (c *Config) FeeBasis() domain.FeeBasis {
	buy, _ := domain.ParseLiquidity(c.Scanner.FeeBasis.Buy)
	sell, _ := domain.ParseLiquidity(c.Scanner.FeeBasis.Sell)
	return domain.FeeBasis{Buy: buy, Sell: sell}
}

// FeeSchedule builds the immutable fee schedule.
func (c *Config) FeeSchedule() (*domain.FeeSchedule, error) {
	rates := make(map[domain.Venue]domain.FeeRate, len(c.Fees))
	for _, f := range c.Fees {
		m, err := domain.ParseMarketType(f.Market)
		if err != nil {
			return nil, &domain.ConfigError{Field: "fees." + f.Exchange, Err: err}
		}
		rates[domain.Venue{Exchange: strings.ToLower(f.Exchange), Market: m}] = domain.FeeRate{Taker: f.Taker, Maker: f.Maker}
	}
	return domain.NewFeeSchedule(rates)
}

// Validate checks configuration validity. Every failure is a *domain.ConfigError.
func (c *Config) Validate() error {
	if len(c.Scanner.Assets) == 0 {
		return &domain.ConfigError{Field: "scanner.assets", Err: domain.ErrNoAssets}
	}
	if c.Scanner.IntervalSec <= 0 {
		return &domain.ConfigError{Field: "scanner.interval_sec", Err: errors.New("must be positive")}
	}
	if !c.Scanner.NotionalUSD.IsPositive() {
		return &domain.ConfigError{Field: "scanner.notional_usd", Err: errors.New("must be positive")}
	}
	if c.Scanner.FetchTimeoutMS <= 0 {
		return &domain.ConfigError{Field: "scanner.fetch_timeout_ms", Err: errors.New("must be positive")}
	}
	if c.Scanner.MaxConcurrentFetches < 0 {
		return &domain.ConfigError{Field: "scanner.max_concurrent_fetches", Err: errors.New("must not be negative")}
	}
	if c.Scanner.MaxRetries < 0 {
		return &domain.ConfigError{Field: "scanner.max_retries", Err: errors.New("must not be negative")}
	}
	if _, err := domain.ParseLiquidity(c.Scanner.FeeBasis.Buy); err != nil {
		return &domain.ConfigError{Field: "scanner.fee_basis.buy", Err: err}
	}
	if _, err := domain.ParseLiquidity(c.Scanner.FeeBasis.Sell); err != nil {
		return &domain.ConfigError{Field: "scanner.fee_basis.sell", Err: err}
	}

	if len(c.Exchanges) == 0 {
		return &domain.ConfigError{Field: "exchanges", Err: errors.New("at least one exchange is required")}
	}
	seen := make(map[domain.Venue]bool, len(c.Exchanges))
	for i, ex := range c.Exchanges {
		field := fmt.Sprintf("exchanges[%d]", i)
		if !domain.IsSupportedExchange(strings.ToLower(ex.ID)) {
			return &domain.ConfigError{Field: field + ".id", Err: fmt.Errorf("%w: %q", domain.ErrUnknownExchange, ex.ID)}
		}
		if _, err := domain.ParseMarketType(ex.Market); err != nil {
			return &domain.ConfigError{Field: field + ".market", Err: err}
		}
		v := ex.Venue()
		if !domain.SupportsVenue(v) {
			return &domain.ConfigError{Field: field + ".market", Err: fmt.Errorf("%s has no %s market", v.Exchange, v.Market)}
		}
		if seen[v] {
			return &domain.ConfigError{Field: field, Err: fmt.Errorf("duplicate venue %s", v)}
		}
		seen[v] = true
		if ex.RestURL != "" && !hasPrefix(ex.RestURL, "http://") && !hasPrefix(ex.RestURL, "https://") {
			return &domain.ConfigError{Field: field + ".rest_url", Err: fmt.Errorf("invalid URL: %s", ex.RestURL)}
		}
	}

	for i, f := range c.Fees {
		field := fmt.Sprintf("fees[%d]", i)
		if !domain.IsSupportedExchange(strings.ToLower(f.Exchange)) {
			return &domain.ConfigError{Field: field + ".exchange", Err: fmt.Errorf("%w: %q", domain.ErrUnknownExchange, f.Exchange)}
		}
		if _, err := domain.ParseMarketType(f.Market); err != nil {
			return &domain.ConfigError{Field: field + ".market", Err: err}
		}
		if f.Taker.IsNegative() || f.Maker.IsNegative() {
			return &domain.ConfigError{Field: field, Err: errors.New("fee rates must not be negative")}
		}
	}

	if c.Output.OpportunityLog == "" {
		return &domain.ConfigError{Field: "output.opportunity_log", Err: errors.New("path is required")}
	}
	if c.Output.ActivityLog == "" {
		return &domain.ConfigError{Field: "output.activity_log", Err: errors.New("path is required")}
	}

	if c.Storage.Enabled {
		if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
			return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
		}
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("dsn is required")}
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return &domain.ConfigError{Field: "redis.addr", Err: errors.New("address is required")}
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("address is required")}
	}

	return nil
}

// normalize upper-cases asset names and drops duplicates, keeping order.
func (c *Config) normalize() {
	seen := make(map[string]bool, len(c.Scanner.Assets))
	assets := c.Scanner.Assets[:0]
	for _, a := range c.Scanner.Assets {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		assets = append(assets, a)
	}
	c.Scanner.Assets = assets
	for i := range c.Exchanges {
		c.Exchanges[i].ID = strings.ToLower(strings.TrimSpace(c.Exchanges[i].ID))
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	for i := range cfg.Exchanges {
		prefix := strings.ToUpper(strings.TrimSpace(cfg.Exchanges[i].ID))
		setStr(&cfg.Exchanges[i].AccessKey, prefix+"_API_KEY")
		setStr(&cfg.Exchanges[i].SecretKey, prefix+"_API_SECRET")
		setStr(&cfg.Exchanges[i].Passphrase, prefix+"_API_PASSPHRASE")
	}

	if v := os.Getenv(EnvPrefix + "ASSETS"); v != "" {
		cfg.Scanner.Assets = strings.Split(v, ",")
	}
	setInt(&cfg.Scanner.IntervalSec, EnvPrefix+"INTERVAL_SEC")
	setDecimal(&cfg.Scanner.NotionalUSD, EnvPrefix+"NOTIONAL_USD")
	setDecimal(&cfg.Scanner.MinProfitPercent, EnvPrefix+"MIN_PROFIT_PERCENT")
	setInt(&cfg.Scanner.FetchTimeoutMS, EnvPrefix+"FETCH_TIMEOUT_MS")

	setStr(&cfg.Output.OpportunityLog, EnvPrefix+"OPPORTUNITY_LOG")
	setStr(&cfg.Output.ActivityLog, EnvPrefix+"ACTIVITY_LOG")

	setStr(&cfg.Storage.DSN, EnvPrefix+"STORAGE_DSN")
	setStr(&cfg.Redis.Addr, EnvPrefix+"REDIS_ADDR")
	setStr(&cfg.Redis.Password, EnvPrefix+"REDIS_PASSWORD")
	setStr(&cfg.Server.Addr, EnvPrefix+"SERVER_ADDR")
	setStr(&cfg.Logging.Level, EnvPrefix+"LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}
