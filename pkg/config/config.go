// 文件: pkg/config/config.go
// 服务配置: TOML 文件 + PRICER_ 前缀环境变量
//
// 环境变量覆盖文件，键名中的 "." 换成 "_"，例如 PRICER_HTTP_ADDR。
// 所有外部依赖默认关闭，只开 HTTP 也能完整报价。

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"optlab.com/pkg/kafka"
	"optlab.com/pkg/marketdata"
	pnats "optlab.com/pkg/nats"
	"optlab.com/pkg/pricing"
	"optlab.com/pkg/pricing/binomial"
	"optlab.com/pkg/pricing/montecarlo"
	"optlab.com/pkg/quote"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix 环境变量前缀
const EnvPrefix = "PRICER"

// Config 顶层配置
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
	Pricing PricingConfig `mapstructure:"pricing"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
}

// ServiceConfig 实例标识
type ServiceConfig struct {
	Name   string `mapstructure:"name"`
	NodeID int64  `mapstructure:"node_id"` // snowflake 节点号 0-1023
}

// HTTPConfig HTTP 入口
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // gin: debug / release / test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug / info / warn / error
	Format string `mapstructure:"format"` // json / text
}

// PricingConfig 定价默认值
type PricingConfig struct {
	Defaults      marketdata.Defaults `mapstructure:"defaults"`
	BinomialSteps int                 `mapstructure:"binomial_steps"`
	BinomialStyle string              `mapstructure:"binomial_style"`
	Simulations   int                 `mapstructure:"simulations"`
	PathSteps     int                 `mapstructure:"path_steps"`
	Workers       int                 `mapstructure:"workers"`
	MaxPathCells  int                 `mapstructure:"max_path_cells"`
	MaxSteps      int                 `mapstructure:"max_steps"`
}

// NATSConfig NATS 请求/应答入口和事件出口
type NATSConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	pnats.Config `mapstructure:",squash"`

	Queue           string `mapstructure:"queue"`
	OptionSubject   string `mapstructure:"option_subject"`
	StrategySubject string `mapstructure:"strategy_subject"`
	QuoteSubject    string `mapstructure:"quote_subject"`  // 报价事件
	ClosesSubject   string `mapstructure:"closes_subject"` // 收盘价推送
}

// KafkaConfig 报价事件 topic 和批量请求 topic
type KafkaConfig struct {
	Enabled      bool                 `mapstructure:"enabled"`
	Brokers      []string             `mapstructure:"brokers"`
	QuoteTopic   string               `mapstructure:"quote_topic"`
	RequestTopic string               `mapstructure:"request_topic"`
	GroupID      string               `mapstructure:"group_id"`
	Producer     kafka.ProducerConfig `mapstructure:"producer"`
}

// RedisConfig 收盘价存储 + 行情快照缓存
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// MySQLConfig 报价流水
type MySQLConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// =============================================================================
// 加载
// =============================================================================

// Load 读取配置，path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	fallback := marketdata.DefaultFallback()
	mc := montecarlo.DefaultConfig()
	natsCfg := pnats.DefaultConfig()
	producer := kafka.DefaultProducerConfig(nil)

	v.SetDefault("service.name", "pricer")
	v.SetDefault("service.node_id", 1)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("pricing.defaults.spot", fallback.Spot)
	v.SetDefault("pricing.defaults.rate", fallback.Rate)
	v.SetDefault("pricing.defaults.volatility", fallback.Volatility)
	v.SetDefault("pricing.binomial_steps", binomial.DefaultSteps)
	v.SetDefault("pricing.binomial_style", "american")
	v.SetDefault("pricing.simulations", mc.Simulations)
	v.SetDefault("pricing.path_steps", mc.Steps)
	v.SetDefault("pricing.workers", 0)
	v.SetDefault("pricing.max_path_cells", quote.DefaultMaxPathCells)
	v.SetDefault("pricing.max_steps", quote.DefaultMaxSteps)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", natsCfg.URL)
	v.SetDefault("nats.name", natsCfg.Name)
	v.SetDefault("nats.request_timeout", natsCfg.RequestTimeout)
	v.SetDefault("nats.reconnect_wait", natsCfg.ReconnectWait)
	v.SetDefault("nats.max_reconnects", natsCfg.MaxReconnects)
	v.SetDefault("nats.queue", "pricer")
	v.SetDefault("nats.option_subject", "pricing.option")
	v.SetDefault("nats.strategy_subject", "pricing.strategy")
	v.SetDefault("nats.quote_subject", quote.DefaultQuoteSubject)
	v.SetDefault("nats.closes_subject", "marketdata.closes")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.quote_topic", quote.DefaultQuoteTopic)
	v.SetDefault("kafka.request_topic", "pricing.requests")
	v.SetDefault("kafka.group_id", "pricer")
	v.SetDefault("kafka.producer.required_acks", producer.RequiredAcks)
	v.SetDefault("kafka.producer.compression", producer.Compression)
	v.SetDefault("kafka.producer.flush_frequency", producer.FlushFrequency)
	v.SetDefault("kafka.producer.flush_messages", producer.FlushMessages)
	v.SetDefault("kafka.producer.max_retries", producer.MaxRetries)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_ttl", marketdata.DefaultSnapshotTTL)

	v.SetDefault("mysql.enabled", false)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.conn_max_lifetime", time.Hour)
	v.SetDefault("mysql.auto_migrate", true)
}

// Validate 启动前校验
func (c *Config) Validate() error {
	var errs []error
	if c.Service.NodeID < 0 || c.Service.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("service.node_id must be in [0, 1023], got %d", c.Service.NodeID))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch c.HTTP.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("http.mode %q is not debug/release/test", c.HTTP.Mode))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json/text", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Pricing.QuoteConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.MySQL.Enabled && c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required when mysql is enabled"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// QuoteConfig 转成报价服务配置
func (p PricingConfig) QuoteConfig() (quote.Config, error) {
	cfg := quote.DefaultConfig()
	cfg.Defaults = p.Defaults

	style, err := pricing.ParseExerciseStyle(p.BinomialStyle)
	if err != nil {
		return quote.Config{}, fmt.Errorf("pricing.binomial_style: %w", err)
	}
	cfg.Binomial = binomial.Config{Steps: p.BinomialSteps, Style: style}
	if err := cfg.Binomial.Validate(); err != nil {
		return quote.Config{}, fmt.Errorf("pricing.binomial_steps: %w", err)
	}

	cfg.MonteCarlo.Simulations = p.Simulations
	cfg.MonteCarlo.Steps = p.PathSteps
	cfg.MonteCarlo.Workers = p.Workers
	if err := cfg.MonteCarlo.Validate(); err != nil {
		return quote.Config{}, fmt.Errorf("pricing monte carlo: %w", err)
	}
	cfg.MaxPathCells = p.MaxPathCells
	cfg.MaxSteps = p.MaxSteps
	if p.MaxSteps > 0 && p.BinomialSteps > p.MaxSteps {
		return quote.Config{}, fmt.Errorf("pricing.binomial_steps %d exceeds pricing.max_steps %d", p.BinomialSteps, p.MaxSteps)
	}

	d := p.Defaults
	if d.Spot <= 0 || d.Volatility <= 0 {
		return quote.Config{}, fmt.Errorf("pricing.defaults must have positive spot and volatility, got %+v", d)
	}
	return cfg, nil
}

// KafkaProducer 生产者配置，brokers 取顶层
func (k KafkaConfig) KafkaProducer() kafka.ProducerConfig {
	pc := k.Producer
	pc.Brokers = k.Brokers
	return pc
}

// KafkaConsumer 批量请求消费者配置
func (k KafkaConfig) KafkaConsumer() kafka.ConsumerConfig {
	return kafka.DefaultConsumerConfig(k.Brokers, k.GroupID, []string{k.RequestTopic})
}
