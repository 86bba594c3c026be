package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) over the
// defaults, loads .env if present and applies LEDGER_* overrides. The result
// is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setFloat64(&cfg.Ledger.InitialLiquidity, "LEDGER_INITIAL_LIQUIDITY")
	setStr(&cfg.Ledger.IDScheme, "LEDGER_ID_SCHEME")
	setBool(&cfg.Ledger.SeedExample, "LEDGER_SEED_EXAMPLE")

	setBool(&cfg.Chain.Enabled, "LEDGER_CHAIN_ENABLED")
	setBool(&cfg.Chain.RequireWallet, "LEDGER_CHAIN_REQUIRE_WALLET")
	setStr(&cfg.Chain.Network, "LEDGER_CHAIN_NETWORK")

	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "LEDGER_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimitRequests, "LEDGER_SERVER_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.Server.RateLimitWindow, "LEDGER_SERVER_RATE_LIMIT_WINDOW")
	setStringSlice(&cfg.Server.TrustedProxies, "LEDGER_SERVER_TRUSTED_PROXIES")

	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "LEDGER_POSTGRES_DSN")
	setBool(&cfg.Postgres.RunMigrations, "LEDGER_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.S3.Endpoint, "LEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGER_S3_SECRET_KEY")
	setStr(&cfg.S3.Prefix, "LEDGER_S3_PREFIX")
	setDuration(&cfg.S3.ExportInterval, "LEDGER_S3_EXPORT_INTERVAL")

	setStr(&cfg.Notify.TelegramToken, "LEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LEDGER_NOTIFY_EVENTS")

	setStr(&cfg.Log.Level, "LEDGER_LOG_LEVEL")
	setStr(&cfg.Log.Format, "LEDGER_LOG_FORMAT")
	setStr(&cfg.Log.File, "LEDGER_LOG_FILE")
}

// Each helper only touches dst when the variable is set, non-empty and
// parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
