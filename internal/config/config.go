package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application parameters.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	RabbitMQ      RabbitMQConfig      `mapstructure:"rabbitmq"`
	Redis         RedisConfig         `mapstructure:"redis"`
	ObjectStore   ObjectStoreConfig   `mapstructure:"objectstore"`
	Orders        OrdersConfig        `mapstructure:"orders"`
	Settlement    SettlementConfig    `mapstructure:"settlement"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type AppConfig struct {
	Env    string `mapstructure:"env"`
	Port   int    `mapstructure:"port"`
	NodeID string `mapstructure:"node_id"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type OrdersConfig struct {
	// SkipSettlement stores new orders as waiting and does not enqueue them.
	SkipSettlement  bool    `mapstructure:"skip_settlement"`
	MaxReceiveCount int     `mapstructure:"max_receive_count"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst"`
}

type SettlementConfig struct {
	Wait        time.Duration `mapstructure:"wait"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type NotificationsConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	RegistryKey  string        `mapstructure:"registry_key"`
}

var defaults = map[string]any{
	"app.env":                     "development",
	"app.port":                    3000,
	"app.node_id":                 "",
	"database.host":               "",
	"database.port":               5432,
	"database.user":               "",
	"database.password":           "",
	"database.database":           "",
	"database.sslmode":            "disable",
	"database.max_conns":          10,
	"rabbitmq.host":               "",
	"rabbitmq.port":               5672,
	"rabbitmq.user":               "",
	"rabbitmq.password":           "",
	"rabbitmq.vhost":              "/",
	"rabbitmq.use_tls":            false,
	"redis.addr":                  "",
	"redis.password":              "",
	"redis.db":                    0,
	"objectstore.endpoint":        "",
	"objectstore.access_key":      "",
	"objectstore.secret_key":      "",
	"objectstore.bucket":          "orders-logs",
	"objectstore.use_ssl":         false,
	"orders.skip_settlement":      false,
	"orders.max_receive_count":    5,
	"orders.rate_limit":           20.0,
	"orders.rate_burst":           40,
	"settlement.wait":             "3s",
	"settlement.timeout":          "15s",
	"settlement.concurrency":      50,
	"settlement.lock_ttl":         "30s",
	"notifications.write_timeout": "5s",
	"notifications.ping_interval": "30s",
	"notifications.concurrency":   32,
	"notifications.registry_key":  "orders:connections",
}

// Load reads .env, then the optional YAML file at path, then ORDERS_* environment
// overrides (ORDERS_DATABASE_HOST overrides database.host).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("ORDERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.App.NodeID == "" {
		cfg.App.NodeID, _ = os.Hostname()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Orders.MaxReceiveCount <= 0:
		return errors.New("invalid config: orders.max_receive_count must be positive")
	case c.Settlement.Timeout <= 0:
		return errors.New("invalid config: settlement.timeout must be positive")
	case c.Settlement.Wait < 0:
		return errors.New("invalid config: settlement.wait must not be negative")
	case c.Settlement.Concurrency <= 0:
		return errors.New("invalid config: settlement.concurrency must be positive")
	case c.Notifications.Concurrency <= 0:
		return errors.New("invalid config: notifications.concurrency must be positive")
	}
	return nil
}

// RequireDatabase, RequireRabbitMQ and friends are checked by the commands that need them.
func (c *Config) RequireDatabase() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
		return errors.New("database config incomplete")
	}
	return nil
}

func (c *Config) RequireRabbitMQ() error {
	if c.RabbitMQ.Host == "" || c.RabbitMQ.User == "" {
		return errors.New("rabbitmq config incomplete")
	}
	return nil
}
