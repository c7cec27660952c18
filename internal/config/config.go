package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Brokers  BrokersConfig  `yaml:"brokers"`
	Copy     CopyConfig     `yaml:"copy"`
	Telegram TelegramConfig `yaml:"telegram"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BrokersConfig struct {
	Tastytrade BrokerEndpointConfig `yaml:"tastytrade"`
	Schwab     BrokerEndpointConfig `yaml:"schwab"`
}

type BrokerEndpointConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CopyConfig struct {
	// MaxParallelFollowers bounds the per-event fan-out; 1 means sequential.
	MaxParallelFollowers int `yaml:"max_parallel_followers"`
	SubmitTimeoutSeconds int `yaml:"submit_timeout_seconds"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/copytrader.db"
	}
	if cfg.Brokers.Tastytrade.BaseURL == "" {
		cfg.Brokers.Tastytrade.BaseURL = "https://api.tastytrade.com"
	}
	if cfg.Brokers.Schwab.BaseURL == "" {
		cfg.Brokers.Schwab.BaseURL = "https://api.schwab.com"
	}
	if cfg.Brokers.Tastytrade.TimeoutSeconds == 0 {
		cfg.Brokers.Tastytrade.TimeoutSeconds = 15
	}
	if cfg.Brokers.Schwab.TimeoutSeconds == 0 {
		cfg.Brokers.Schwab.TimeoutSeconds = 15
	}
	if cfg.Copy.MaxParallelFollowers == 0 {
		cfg.Copy.MaxParallelFollowers = 4
	}
	if cfg.Copy.SubmitTimeoutSeconds == 0 {
		cfg.Copy.SubmitTimeoutSeconds = 30
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Copy.MaxParallelFollowers < 1 {
		return fmt.Errorf("copy.max_parallel_followers must be >= 1")
	}
	if c.Copy.SubmitTimeoutSeconds < 1 {
		return fmt.Errorf("copy.submit_timeout_seconds must be >= 1")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Copy.SubmitTimeoutSeconds) * time.Second
}
