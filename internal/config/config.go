package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"karabook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payment    PaymentConfig    `yaml:"payment"`
	Notify     NotifyConfig     `yaml:"notify"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
	Rooms      []models.Room    `yaml:"rooms"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type PaymentConfig struct {
	// WebhookSecret signs inbound notifications. Overridable via
	// PAYMENT_WEBHOOK_SECRET so it never needs to live in the file.
	WebhookSecret    string        `yaml:"webhook_secret"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
}

type NotifyConfig struct {
	// Provider selects the notification backend: "log" or "telegram".
	Provider      string `yaml:"provider"`
	TelegramToken string `yaml:"telegram_token"`
	TelegramChat  int64  `yaml:"telegram_chat"`
}

type SweeperConfig struct {
	HoldTTL     time.Duration `yaml:"hold_ttl"`
	WaitlistTTL time.Duration `yaml:"waitlist_ttl"`
	BatchSize   int           `yaml:"batch_size"`
}

type APIConfig struct {
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config and applies environment overrides for
// secrets. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("PAYMENT_WEBHOOK_SECRET"); v != "" {
		cfg.Payment.WebhookSecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "karabook"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/karabook.db"
	}
	if c.Sweeper.HoldTTL <= 0 {
		c.Sweeper.HoldTTL = models.DefaultHoldTTL
	}
	if c.Sweeper.WaitlistTTL <= 0 {
		c.Sweeper.WaitlistTTL = models.DefaultWaitlistTTL
	}
	if c.Sweeper.BatchSize <= 0 {
		c.Sweeper.BatchSize = models.DefaultSweepBatchSize
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Notify.Provider == "" {
		c.Notify.Provider = "log"
	}
}

func (c *Config) validate() error {
	if c.Payment.WebhookSecret == "" {
		return errors.New("payment.webhook_secret is required (or PAYMENT_WEBHOOK_SECRET)")
	}
	if c.Notify.Provider == "telegram" && c.Notify.TelegramToken == "" {
		return errors.New("notify.telegram_token is required for the telegram provider")
	}
	for i, room := range c.Rooms {
		if room.Name == "" {
			return fmt.Errorf("rooms[%d]: name is required", i)
		}
		if room.Capacity <= 0 {
			return fmt.Errorf("rooms[%d]: capacity must be positive", i)
		}
	}
	return nil
}
