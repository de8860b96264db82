package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopledger/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	UserJWT     JWTConfig         `mapstructure:"user_jwt"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Queue       QueueConfig       `mapstructure:"queue"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Order       OrderConfig       `mapstructure:"order"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Security    SecurityConfig    `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   string `mapstructure:"port"`
	Mode                   string `mapstructure:"mode"` // debug / release
	ReadTimeoutSeconds     int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		AlsoStdout: c.Stdout,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver              string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres/mysql）
	DSN                 string             `mapstructure:"dsn"`    // 数据库连接串
	Pool                DatabasePoolConfig `mapstructure:"pool"`
	LogLevel            string             `mapstructure:"log_level"` // silent/error/warn/info
	SlowThresholdMillis int                `mapstructure:"slow_threshold_ms"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
	MaxRetry    int            `mapstructure:"max_retry"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// OrderConfig 下单与计价配置
type OrderConfig struct {
	Currency              string `mapstructure:"currency"`
	TaxRate               string `mapstructure:"tax_rate"`                // 税率（小数字符串，如 0.10）
	FreeShippingThreshold string `mapstructure:"free_shipping_threshold"` // 包邮门槛
	ShippingFee           string `mapstructure:"shipping_fee"`            // 未达门槛时的运费
	MaxItems              int    `mapstructure:"max_items"`
	MaxConflictRetries    int    `mapstructure:"max_conflict_retries"`
	OrderNoMaxAttempts    int    `mapstructure:"order_no_max_attempts"`
	LowStockThreshold     int    `mapstructure:"low_stock_threshold"`
}

// ProgressionConfig 订单自动推进策略
type ProgressionConfig struct {
	PendingDelay    time.Duration `mapstructure:"pending_delay"`
	ProcessingAfter time.Duration `mapstructure:"processing_after"`
	ConfirmDelay    time.Duration `mapstructure:"confirm_delay"`
	ShipDelay       time.Duration `mapstructure:"ship_delay"`
	DeliverDelay    time.Duration `mapstructure:"deliver_delay"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// SchedulerConfig 定时任务配置（robfig/cron 表达式）
type SchedulerConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	ProgressionSpec      string `mapstructure:"progression_spec"`
	CacheCleanupSpec     string `mapstructure:"cache_cleanup_spec"`
	AnalyticsRefreshSpec string `mapstructure:"analytics_refresh_spec"`
}

// CacheConfig 缓存失效与 TTL 配置
type CacheConfig struct {
	InvalidationBuffer int           `mapstructure:"invalidation_buffer"`
	OrderTTL           time.Duration `mapstructure:"order_ttl"`
	ProductListTTL     time.Duration `mapstructure:"product_list_ttl"`
	AnalyticsTTL       time.Duration `mapstructure:"analytics_ttl"`
	RecentOrdersTTL    time.Duration `mapstructure:"recent_orders_ttl"`
}

// SecurityConfig 安全相关配置
type SecurityConfig struct {
	LoginRateLimit RateLimitConfig `mapstructure:"login_rate_limit"`
}

// RateLimitConfig 固定窗口限流
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
}

// Load 从 .env 与 config.yml 加载配置
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugw("config_dotenv_skipped", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../")
	v.AddConfigPath("./etc")
	SetDefaults(v)

	// 环境变量覆盖，例如 server.port -> SERVER_PORT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Unmarshal 将 viper 实例解析为配置结构
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("log.level", "")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "shopledger.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.stdout", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/shopledger.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold_ms", 200)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("user_jwt.expire_hours", 168)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sl")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 8)
	v.SetDefault("queue.queues", map[string]int{
		"critical": 6,
		"default":  3,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("order.currency", "USD")
	v.SetDefault("order.tax_rate", "0.10")
	v.SetDefault("order.free_shipping_threshold", "100")
	v.SetDefault("order.shipping_fee", "10")
	v.SetDefault("order.max_items", 50)
	v.SetDefault("order.max_conflict_retries", 3)
	v.SetDefault("order.order_no_max_attempts", 5)
	v.SetDefault("order.low_stock_threshold", 10)
	v.SetDefault("progression.pending_delay", "5m")
	v.SetDefault("progression.processing_after", "7m")
	v.SetDefault("progression.confirm_delay", "2m")
	v.SetDefault("progression.ship_delay", "2m")
	v.SetDefault("progression.deliver_delay", "3m")
	v.SetDefault("progression.batch_size", 100)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.progression_spec", "@every 5m")
	v.SetDefault("scheduler.cache_cleanup_spec", "@hourly")
	v.SetDefault("scheduler.analytics_refresh_spec", "@every 6h")
	v.SetDefault("cache.invalidation_buffer", 1024)
	v.SetDefault("cache.order_ttl", "10m")
	v.SetDefault("cache.product_list_ttl", "30m")
	v.SetDefault("cache.analytics_ttl", "1h")
	v.SetDefault("cache.recent_orders_ttl", "30m")
	v.SetDefault("security.login_rate_limit.window_seconds", 300)
	v.SetDefault("security.login_rate_limit.max_attempts", 5)
}
