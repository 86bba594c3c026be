// Package config defines the ledger server configuration: TOML on top of
// built-in defaults, overridden by LEDGER_* environment variables.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Chain    ChainConfig    `toml:"chain"`
	Server   ServerConfig   `toml:"server"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
}

// LedgerConfig controls the ledger core.
type LedgerConfig struct {
	// InitialLiquidity seeds every outcome of a new market.
	InitialLiquidity float64 `toml:"initial_liquidity"`
	// IDScheme is "sequence" ("1", "2", ...) or "uuid" (UUIDv7).
	IDScheme string `toml:"id_scheme"`
	// SeedExample creates one example market at startup.
	SeedExample bool `toml:"seed_example"`
}

// ChainConfig controls trade submission to the simulated chain.
type ChainConfig struct {
	Enabled       bool   `toml:"enabled"`
	RequireWallet bool   `toml:"require_wallet"`
	Network       string `toml:"network"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey guards admin routes. Empty leaves them open.
	AdminAPIKey string `toml:"admin_api_key"`
	// RateLimitRequests per RateLimitWindow per client on mutating routes.
	// Zero disables rate limiting.
	RateLimitRequests int      `toml:"rate_limit_requests"`
	RateLimitWindow   duration `toml:"rate_limit_window"`
	// TrustedProxies lists proxy addresses or CIDR ranges whose
	// X-Forwarded-For and X-Real-IP headers identify the client. Requests
	// from anywhere else are keyed by their connection address.
	TrustedProxies  []string `toml:"trusted_proxies"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection settings. An empty Addr keeps the
// event bus and rate limiter in-process.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// PostgresConfig holds the audit database settings. An empty DSN disables
// the audit log.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	MinConns      int    `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds snapshot export settings. An empty Bucket disables export.
type S3Config struct {
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	ExportInterval duration `toml:"export_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File additionally writes logs to a rotating file when set.
	File string `toml:"file"`
}

// duration lets TOML carry durations as strings like "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns a Config that runs a self-contained ledger on :8080 with
// no external services.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			InitialLiquidity: 100,
			IDScheme:         "sequence",
			SeedExample:      true,
		},
		Chain: ChainConfig{
			Network: "devnet",
		},
		Server: ServerConfig{
			Port:              8080,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 20,
			RateLimitWindow:   duration{time.Second},
			ShutdownTimeout:   duration{5 * time.Second},
		},
		Redis: RedisConfig{
			PoolSize:     10,
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			MaxConns:      5,
			MinConns:      1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			Prefix:         "ledger",
			ExportInterval: duration{15 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true}
	validIDSchemes  = map[string]bool{"sequence": true, "uuid": true}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Ledger.InitialLiquidity <= 0 {
		errs = append(errs, fmt.Sprintf("ledger: initial_liquidity must be > 0, got %v", c.Ledger.InitialLiquidity))
	}
	if !validIDSchemes[strings.ToLower(strings.TrimSpace(c.Ledger.IDScheme))] {
		errs = append(errs, fmt.Sprintf("ledger: unknown id_scheme %q (valid: sequence, uuid)", c.Ledger.IDScheme))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitRequests < 0 {
		errs = append(errs, "server: rate_limit_requests must be >= 0")
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow.Duration <= 0 {
		errs = append(errs, "server: rate_limit_window must be > 0 when rate limiting is enabled")
	}

	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Sprintf("server: trusted_proxies entry %q is not an address or CIDR", p))
		}
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Postgres.DSN != "" && c.Postgres.MinConns > c.Postgres.MaxConns {
		errs = append(errs, "postgres: min_conns must not exceed max_conns")
	}

	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when bucket is set")
		}
		if c.S3.ExportInterval.Duration < time.Minute {
			errs = append(errs, "s3: export_interval must be at least 1m")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, text)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
