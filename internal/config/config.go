package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
	Business  BusinessConfig  `mapstructure:"business"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port         int     `mapstructure:"port"`
	Mode         string  `mapstructure:"mode"`
	RateLimitQPS float64 `mapstructure:"rate_limit_qps"`
	RateBurst    int     `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"` // dev / prod
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	// 启动时执行内嵌的 SQL 迁移，与 AutoMigrate 二选一
	RunMigrations bool `mapstructure:"run_migrations"`
}

// DSN go-sql-driver 格式的连接串
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderEvent string `mapstructure:"order_event"`
}

type SnowflakeConfig struct {
	NodeID int64 `mapstructure:"node_id"`
}

type BusinessConfig struct {
	OrderTimeoutMinutes    int `mapstructure:"order_timeout_minutes"`
	AutoCompleteDays       int `mapstructure:"auto_complete_days"`
	SweepBatchSize         int `mapstructure:"sweep_batch_size"`
	MaxRetryCount          int `mapstructure:"max_retry_count"`
	OrderNoRetry           int `mapstructure:"order_no_retry"`
	LockExpireSeconds      int `mapstructure:"lock_expire_seconds"`
	LockRetryIntervalMilli int `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries         int `mapstructure:"lock_max_retries"`
}

func (c BusinessConfig) LockExpiration() time.Duration {
	return time.Duration(c.LockExpireSeconds) * time.Second
}

func (c BusinessConfig) LockRetryInterval() time.Duration {
	return time.Duration(c.LockRetryIntervalMilli) * time.Millisecond
}

type JobsConfig struct {
	TimeoutSweepEnabled   bool          `mapstructure:"timeout_sweep_enabled"`
	TimeoutSweepInterval  time.Duration `mapstructure:"timeout_sweep_interval"`
	AutoCompleteEnabled   bool          `mapstructure:"auto_complete_enabled"`
	AutoCompleteInterval  time.Duration `mapstructure:"auto_complete_interval"`
	LedgerAuditEnabled    bool          `mapstructure:"ledger_audit_enabled"`
	LedgerAuditInterval   time.Duration `mapstructure:"ledger_audit_interval"`
	OutboxSenderInterval  time.Duration `mapstructure:"outbox_sender_interval"`
	OutboxSenderBatchSize int           `mapstructure:"outbox_sender_batch_size"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

var GlobalConfig *Config

// SetDefaults 默认值，配置文件和环境变量可覆盖
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.rate_limit_qps", 200)
	v.SetDefault("server.rate_burst", 400)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "prod")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.auto_migrate", false)
	v.SetDefault("mysql.run_migrations", false)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic.order_event", "market_order_event")

	v.SetDefault("snowflake.node_id", 1)

	v.SetDefault("business.order_timeout_minutes", 30)
	v.SetDefault("business.auto_complete_days", 7)
	v.SetDefault("business.sweep_batch_size", 100)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.order_no_retry", 5)
	v.SetDefault("business.lock_expire_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 100)
	v.SetDefault("business.lock_max_retries", 30)

	v.SetDefault("jobs.timeout_sweep_enabled", true)
	v.SetDefault("jobs.timeout_sweep_interval", "1m")
	v.SetDefault("jobs.auto_complete_enabled", true)
	v.SetDefault("jobs.auto_complete_interval", "1h")
	v.SetDefault("jobs.ledger_audit_enabled", true)
	v.SetDefault("jobs.ledger_audit_interval", "6h")
	v.SetDefault("jobs.outbox_sender_interval", "500ms")
	v.SetDefault("jobs.outbox_sender_batch_size", 100)
}

// LoadConfig 加载配置文件，环境变量（PM_ 前缀，如 PM_MYSQL_HOST）优先
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = config
	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Business.OrderTimeoutMinutes <= 0 {
		return fmt.Errorf("business.order_timeout_minutes 必须大于0")
	}
	if c.Business.AutoCompleteDays <= 0 {
		return fmt.Errorf("business.auto_complete_days 必须大于0")
	}
	if c.Business.SweepBatchSize <= 0 {
		return fmt.Errorf("business.sweep_batch_size 必须大于0")
	}
	if c.Snowflake.NodeID < 0 || c.Snowflake.NodeID > 1023 {
		return fmt.Errorf("snowflake.node_id 必须在 0-1023 之间")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("启用 kafka 时必须配置 kafka.brokers")
	}
	return nil
}

// Default 仅包含默认值的配置，测试和工具使用
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	config := &Config{}
	_ = v.Unmarshal(config)
	return config
}
