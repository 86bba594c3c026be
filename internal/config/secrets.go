package config

import "net/url"

// RedactedConfig returns a copy of cfg that is safe to log: secrets are
// replaced by "***" and the Postgres DSN keeps only its host and database.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Server.AdminAPIKey)
	redact(&out.Redis.Password)
	out.Postgres.DSN = redactDSN(cfg.Postgres.DSN)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Server.TrustedProxies = append([]string(nil), cfg.Server.TrustedProxies...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return redacted
	}
	if u.User != nil {
		u.User = url.UserPassword(redacted, redacted)
	}
	u.RawQuery = ""
	return u.String()
}
