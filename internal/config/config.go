package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultJWTExpiresIn    = "24h"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "semrelay"
	DefaultPGSSLMode       = "disable"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultThreshold       = 0.81
	DefaultPollIntervalSec = 4
	DefaultPollMaxAttempts = 30
	DefaultBcryptCost      = 10
	DefaultStatsSchedule   = "@every 15m"
	DefaultTermsPath       = "content/terms.txt"
	DefaultUsagePath       = "content/instructions.txt"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Admin      AdminConfig      `toml:"admin"`
	Auth       AuthConfig       `toml:"auth"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Webhook    WebhookConfig    `toml:"webhook"`
	Embeddings EmbeddingsConfig `toml:"embeddings"`
	Completion CompletionConfig `toml:"completion"`
	Cache      CacheConfig      `toml:"cache"`
	Identity   IdentityConfig   `toml:"identity"`
	Outbound   OutboundConfig   `toml:"outbound"`
	Analytics  AnalyticsConfig  `toml:"analytics"`
	Onboarding OnboardingConfig `toml:"onboarding"`
	Stats      StatsConfig      `toml:"stats"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders a keyword/value connection string for pgx and migrate.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type WebhookConfig struct {
	VerifyToken string `toml:"verify_token"`
}

type EmbeddingsConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type CompletionConfig struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	AssistantID         string `toml:"assistant_id"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollMaxAttempts     int    `toml:"poll_max_attempts"`
}

type CacheConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

type IdentityConfig struct {
	BcryptCost int `toml:"bcrypt_cost"`
}

type OutboundConfig struct {
	// Adapter selects the egress transport: "http" or "telegram".
	Adapter       string `toml:"adapter"`
	SendURL       string `toml:"send_url"`
	Token         string `toml:"token"`
	TelegramToken string `toml:"telegram_token"`
}

type AnalyticsConfig struct {
	Endpoint string `toml:"endpoint"`
}

type OnboardingConfig struct {
	TermsPath        string `toml:"terms_path"`
	InstructionsPath string `toml:"instructions_path"`
}

type StatsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Embeddings: EmbeddingsConfig{
			Model:          DefaultEmbeddingModel,
			TimeoutSeconds: 10,
		},
		Completion: CompletionConfig{
			PollIntervalSeconds: DefaultPollIntervalSec,
			PollMaxAttempts:     DefaultPollMaxAttempts,
		},
		Cache: CacheConfig{
			SimilarityThreshold: DefaultThreshold,
		},
		Identity: IdentityConfig{
			BcryptCost: DefaultBcryptCost,
		},
		Outbound: OutboundConfig{
			Adapter: "http",
		},
		Onboarding: OnboardingConfig{
			TermsPath:        DefaultTermsPath,
			InstructionsPath: DefaultUsagePath,
		},
		Stats: StatsConfig{
			Enabled:  true,
			Schedule: DefaultStatsSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *Config) {
	overlay(&cfg.Auth.JWTSecret, "SEMRELAY_JWT_SECRET")
	overlay(&cfg.Admin.Password, "SEMRELAY_ADMIN_PASSWORD")
	overlay(&cfg.Postgres.Password, "SEMRELAY_PG_PASSWORD")
	overlay(&cfg.Webhook.VerifyToken, "SEMRELAY_VERIFY_TOKEN")
	overlay(&cfg.Embeddings.APIKey, "SEMRELAY_EMBEDDINGS_API_KEY")
	overlay(&cfg.Completion.APIKey, "SEMRELAY_COMPLETION_API_KEY")
	overlay(&cfg.Outbound.Token, "SEMRELAY_OUTBOUND_TOKEN")
	overlay(&cfg.Outbound.TelegramToken, "SEMRELAY_TELEGRAM_TOKEN")
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
