package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BILLVAULT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BILLVAULT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Vault ──
	setStr(&cfg.Vault.Issuer, "BILLVAULT_VAULT_ISSUER")
	setStr(&cfg.Vault.Treasury, "BILLVAULT_VAULT_TREASURY")
	setInt64(&cfg.Vault.HaircutBps, "BILLVAULT_VAULT_HAIRCUT_BPS")
	setInt64(&cfg.Vault.SpreadBps, "BILLVAULT_VAULT_SPREAD_BPS")
	setStr(&cfg.Vault.LedgerOperator, "BILLVAULT_VAULT_LEDGER_OPERATOR")

	// ── Database ──
	setStr(&cfg.Database.DSN, "BILLVAULT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "BILLVAULT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BILLVAULT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BILLVAULT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "BILLVAULT_DATABASE_USER")
	setStr(&cfg.Database.Password, "BILLVAULT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BILLVAULT_DATABASE_SSLMODE")
	setStr(&cfg.Database.SSLMode, "BILLVAULT_DATABASE_SSL_MODE") // compatibility alias
	setInt(&cfg.Database.PoolMaxConns, "BILLVAULT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BILLVAULT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BILLVAULT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BILLVAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BILLVAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BILLVAULT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BILLVAULT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BILLVAULT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BILLVAULT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BILLVAULT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BILLVAULT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BILLVAULT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BILLVAULT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BILLVAULT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BILLVAULT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BILLVAULT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BILLVAULT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "BILLVAULT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "BILLVAULT_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "BILLVAULT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BILLVAULT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "BILLVAULT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BILLVAULT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BILLVAULT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BILLVAULT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BILLVAULT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BILLVAULT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BILLVAULT_MODE")
	setStr(&cfg.LogLevel, "BILLVAULT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
