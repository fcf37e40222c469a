// Package config 提供 TOML 配置加载与环境变量覆盖
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 经济服务配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 持久化后端配置
	Storage StorageConfig `mapstructure:"storage"`
	// 账本配置
	Ledger LedgerConfig `mapstructure:"ledger"`
	// 本地缓存配置
	Cache CacheConfig `mapstructure:"cache"`
	// 跨进程同步总线配置
	Bus BusConfig `mapstructure:"bus"`
	// 审计日志配置
	Audit AuditConfig `mapstructure:"audit"`
	// 箱子商店配置
	Shop ShopConfig `mapstructure:"shop"`
	// 物品收购价表（物品 ID -> 单价，十进制字符串）
	Worth map[string]string `mapstructure:"worth"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// StorageConfig 持久化后端配置
type StorageConfig struct {
	// 后端类型：json, sqlite, mysql, postgres
	Type string `mapstructure:"type"`
	// 数据源名称（SQL 后端）
	DSN string `mapstructure:"dsn"`
	// 数据文件路径（json 后端）
	Path string `mapstructure:"path"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
}

// LedgerConfig 账本配置
type LedgerConfig struct {
	// 新账户默认余额（十进制字符串）
	DefaultBalance string `mapstructure:"default_balance"`
	// 货币符号
	CurrencySymbol string `mapstructure:"currency_symbol"`
	// 货币符号是否位于金额之前
	SymbolBeforeAmount bool `mapstructure:"symbol_before_amount"`
	// CAS 写入最大重试次数
	CASMaxRetries int `mapstructure:"cas_max_retries"`
	// CAS 重试退避基准（毫秒），实际退避带随机抖动
	CASBackoffMs int `mapstructure:"cas_backoff_ms"`
}

// CacheConfig 本地缓存配置
type CacheConfig struct {
	// 账户缓存容量
	AccountSize int `mapstructure:"account_size"`
	// 账户缓存 TTL（秒）
	AccountTTL int `mapstructure:"account_ttl"`
	// 名称索引缓存容量
	NameSize int `mapstructure:"name_size"`
	// 名称索引缓存 TTL（秒）
	NameTTL int `mapstructure:"name_ttl"`
	// 全量名称快照 TTL（秒）
	NamesTTL int `mapstructure:"names_ttl"`
}

// BusConfig 同步总线配置
type BusConfig struct {
	// 总线类型：none, redis, kafka
	Kind string `mapstructure:"kind"`
	// Redis 总线配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 总线配置
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig Redis 总线配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host"`
	// 端口
	Port int `mapstructure:"port"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 发布/订阅频道
	Channel string `mapstructure:"channel"`
}

// KafkaConfig Kafka 总线配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 主题
	Topic string `mapstructure:"topic"`
	// Consumer Group ID；留空时每个进程生成独立的 group（广播语义）
	GroupID string `mapstructure:"group_id"`
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	// 审计日志文件路径
	Path string `mapstructure:"path"`
	// 异步写入队列长度
	QueueSize int `mapstructure:"queue_size"`
}

// ShopConfig 箱子商店配置
type ShopConfig struct {
	// 是否启用商店
	Enabled bool `mapstructure:"enabled"`
	// 商店注册表文件路径
	Path string `mapstructure:"path"`
	// 待定交互有效期（秒）
	PendingTTL int `mapstructure:"pending_ttl"`
	// 单笔交易最大数量
	MaxBatch int `mapstructure:"max_batch"`
	// 库存对账周期（秒）
	ReconcileInterval int `mapstructure:"reconcile_interval"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	// 日志级别
	Level string `mapstructure:"level"`
	// 输出格式
	Format string `mapstructure:"format"`
	// 输出目标
	Output string `mapstructure:"output"`
	// 文件路径
	FilePath string `mapstructure:"file_path"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age"`
	// 是否压缩
	Compress bool `mapstructure:"compress"`
	// 是否输出调用者信息
	WithCaller bool `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
}

// Load 从 TOML 文件加载配置，应用默认值并支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("ECONOMY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	switch c.Storage.Type {
	case "json":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for json backend")
		}
	case "sqlite", "mysql", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage DSN is required for %s backend", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	switch c.Bus.Kind {
	case "", "none", "redis", "kafka":
	default:
		return fmt.Errorf("unsupported bus kind: %s", c.Bus.Kind)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("storage.type", "json")
	v.SetDefault("storage.path", "data/balances.json")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", 300)

	v.SetDefault("ledger.default_balance", "1000")
	v.SetDefault("ledger.currency_symbol", "$")
	v.SetDefault("ledger.symbol_before_amount", true)
	v.SetDefault("ledger.cas_max_retries", 10)
	v.SetDefault("ledger.cas_backoff_ms", 10)

	v.SetDefault("cache.account_size", 10000)
	v.SetDefault("cache.account_ttl", 600)
	v.SetDefault("cache.name_size", 10000)
	v.SetDefault("cache.name_ttl", 3600)
	v.SetDefault("cache.names_ttl", 60)

	v.SetDefault("bus.kind", "none")
	v.SetDefault("bus.redis.host", "localhost")
	v.SetDefault("bus.redis.port", 6379)
	v.SetDefault("bus.redis.db", 0)
	v.SetDefault("bus.redis.channel", "economy-updates")
	// group_id 不设默认值：留空时总线为每个进程生成独立的 group，
	// 共享固定 group 的进程会瓜分通知流而不是广播
	v.SetDefault("bus.kafka.topic", "economy-updates")

	v.SetDefault("audit.path", "logs/economy.log")
	v.SetDefault("audit.queue_size", 1024)

	v.SetDefault("shop.enabled", true)
	v.SetDefault("shop.path", "data/shops.json")
	v.SetDefault("shop.pending_ttl", 30)
	v.SetDefault("shop.max_batch", 2304)
	v.SetDefault("shop.reconcile_interval", 300)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
