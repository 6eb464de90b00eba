package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Meter    MeterConfig    `yaml:"meter"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Mode     string `yaml:"mode"` // debug, release, test
	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig enables the asynq-backed task queue when set.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SecretsConfig holds the key material for credential encryption at rest.
type SecretsConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// MeterConfig points at the external billing meter. When disabled, usage is
// still ledgered locally but never reported and balances are not enforced.
type MeterConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GatewayConfig tunes the call pipeline: retry budget, timeouts, the stuck
// call reaper and the ledger reconcile debounce window.
type GatewayConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	CallStuckAfter    time.Duration `yaml:"call_stuck_after"`
	ReaperInterval    time.Duration `yaml:"reaper_interval"`
	ReconcileDebounce time.Duration `yaml:"reconcile_debounce"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps"`
	RateLimitBurst    int           `yaml:"rate_limit_burst"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := DefaultConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     "8080",
			Mode:     "debug",
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "loopgate.db",
		},
		JWT: JWTConfig{
			Secret:     "loopgate-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Secrets: SecretsConfig{
			EncryptionKey: "loopgate-dev-encryption-key",
		},
		Meter: MeterConfig{
			Enabled: false,
		},
		Gateway: GatewayConfig{
			MaxRetries:        3,
			CallTimeout:       120 * time.Second,
			CallStuckAfter:    30 * time.Minute,
			ReaperInterval:    5 * time.Minute,
			ReconcileDebounce: 10 * time.Second,
			SweepInterval:     time.Minute,
			RateLimitRPS:      20,
			RateLimitBurst:    40,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Server.LogLevel = level
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if key := os.Getenv("SECRETS_ENCRYPTION_KEY"); key != "" {
		c.Secrets.EncryptionKey = key
	}
	if baseURL := os.Getenv("METER_BASE_URL"); baseURL != "" {
		c.Meter.Enabled = true
		c.Meter.BaseURL = baseURL
	}
	if apiKey := os.Getenv("METER_API_KEY"); apiKey != "" {
		c.Meter.APIKey = apiKey
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Redis.DB = n
		}
	}
	if retries := os.Getenv("GATEWAY_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
			c.Gateway.MaxRetries = n
		}
	}
	if timeout := os.Getenv("GATEWAY_CALL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Gateway.CallTimeout = d
		}
	}
	if stuck := os.Getenv("GATEWAY_CALL_STUCK_AFTER"); stuck != "" {
		if d, err := time.ParseDuration(stuck); err == nil {
			c.Gateway.CallStuckAfter = d
		}
	}
}
