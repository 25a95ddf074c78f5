package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("addr default: got %q", cfg.Server.Addr)
	}
	if cfg.Cache.SimilarityThreshold != DefaultThreshold {
		t.Fatalf("threshold default: got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Completion.PollIntervalSeconds != DefaultPollIntervalSec ||
		cfg.Completion.PollMaxAttempts != DefaultPollMaxAttempts {
		t.Fatalf("polling defaults: got %+v", cfg.Completion)
	}
	if cfg.Identity.BcryptCost != DefaultBcryptCost {
		t.Fatalf("bcrypt cost default: got %d", cfg.Identity.BcryptCost)
	}
	if cfg.Outbound.Adapter != "http" {
		t.Fatalf("adapter default: got %q", cfg.Outbound.Adapter)
	}
	if !cfg.Stats.Enabled || cfg.Stats.Schedule != DefaultStatsSchedule {
		t.Fatalf("stats defaults: got %+v", cfg.Stats)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"

[cache]
similarity_threshold = 0.9

[identity]
bcrypt_cost = 12

[outbound]
adapter = "telegram"
telegram_token = "tg-token"

[postgres]
host = "db.internal"
port = 5433
user = "relay"
password = "pw"
database = "relay"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr override: got %q", cfg.Server.Addr)
	}
	if cfg.Cache.SimilarityThreshold != 0.9 {
		t.Fatalf("threshold override: got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Identity.BcryptCost != 12 {
		t.Fatalf("bcrypt override: got %d", cfg.Identity.BcryptCost)
	}
	if cfg.Outbound.Adapter != "telegram" || cfg.Outbound.TelegramToken != "tg-token" {
		t.Fatalf("outbound override: got %+v", cfg.Outbound)
	}

	// Untouched sections keep their defaults.
	if cfg.Completion.PollIntervalSeconds != DefaultPollIntervalSec {
		t.Fatalf("expected poll default to survive, got %d", cfg.Completion.PollIntervalSeconds)
	}

	want := "host=db.internal port=5433 user=relay password=pw dbname=relay sslmode=disable"
	if got := cfg.Postgres.DSN(); got != want {
		t.Fatalf("dsn: got %q want %q", got, want)
	}
}

func TestLoadEnvSecretsWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[auth]
jwt_secret = "from-file"

[webhook]
verify_token = "file-token"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SEMRELAY_JWT_SECRET", "from-env")
	t.Setenv("SEMRELAY_VERIFY_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" || cfg.Webhook.VerifyToken != "env-token" {
		t.Fatalf("env must win over file: %+v", cfg)
	}
}
