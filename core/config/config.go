package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds settings for the Telegram bot transport.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// GatewayConfig holds settings for the business messaging gateway transport.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"GATEWAY_BASE_URL"`
	Token   string `yaml:"token" envconfig:"GATEWAY_TOKEN"`
	PhoneID string `yaml:"phone_id" envconfig:"GATEWAY_PHONE_ID"`
	Listen  string `yaml:"listen" envconfig:"GATEWAY_LISTEN"`
	// VerifyToken is echoed back during webhook subscription handshakes.
	VerifyToken string `yaml:"verify_token" envconfig:"GATEWAY_VERIFY_TOKEN"`
}

// RedisConfig holds settings for the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" envconfig:"STORE_BACKEND"`
	Redis   RedisConfig `yaml:"redis"`
}

// EngineConfig bounds the conversational engine's calls into collaborators.
type EngineConfig struct {
	SideEffectTimeoutSeconds int `yaml:"side_effect_timeout_seconds" envconfig:"ENGINE_SIDE_EFFECT_TIMEOUT_SECONDS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StoreMemory keeps sessions in process memory; dev and tests only.
	StoreMemory = "memory"
	// StorePostgres persists sessions in the relational database.
	StorePostgres = "postgres"
	// StoreRedis persists sessions in redis.
	StoreRedis = "redis"
)

// Config aggregates the configuration of the whole bot.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Store    StoreConfig    `yaml:"store"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if backend == "" {
		backend = StorePostgres
	}
	switch backend {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
			return fmt.Errorf("store.redis.addr is required when store.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid store.backend %q; allowed: memory, postgres, redis", cfg.Store.Backend)
	}
	cfg.Store.Backend = backend

	if cfg.Gateway.BaseURL != "" {
		if strings.TrimSpace(cfg.Gateway.Token) == "" {
			return fmt.Errorf("gateway.token is required when gateway.base_url is set")
		}
		if strings.TrimSpace(cfg.Gateway.PhoneID) == "" {
			return fmt.Errorf("gateway.phone_id is required when gateway.base_url is set")
		}
	}

	if cfg.Engine.SideEffectTimeoutSeconds < 0 {
		return fmt.Errorf("engine.side_effect_timeout_seconds must be >= 0")
	}
	if cfg.Engine.SideEffectTimeoutSeconds == 0 {
		cfg.Engine.SideEffectTimeoutSeconds = 10
	}

	return nil
}
