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
// built-in defaults, applies INFRABOND_* environment variable overrides, and
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

// applyEnvOverrides reads well-known INFRABOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "INFRABOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "INFRABOND_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "INFRABOND_SERVER_RATE_LIMIT_PER_MIN")
	setBool(&cfg.Server.RateLimitEnabled, "INFRABOND_SERVER_RATE_LIMIT_ENABLED")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "INFRABOND_STORAGE_DRIVER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "INFRABOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "INFRABOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "INFRABOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "INFRABOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "INFRABOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "INFRABOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "INFRABOND_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "INFRABOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "INFRABOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "INFRABOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "INFRABOND_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "INFRABOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "INFRABOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "INFRABOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "INFRABOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "INFRABOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "INFRABOND_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "INFRABOND_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "INFRABOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "INFRABOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "INFRABOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "INFRABOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "INFRABOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "INFRABOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "INFRABOND_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "INFRABOND_S3_ARCHIVE_INTERVAL")

	// ── Oracle ──
	setInt(&cfg.Oracle.MinMilestones, "INFRABOND_ORACLE_MIN_MILESTONES")
	setBool(&cfg.Oracle.CompletionRequiresTargetDate, "INFRABOND_ORACLE_COMPLETION_REQUIRES_TARGET_DATE")
	setDuration(&cfg.Oracle.OverdueGrace, "INFRABOND_ORACLE_OVERDUE_GRACE")
	setStringSlice(&cfg.Oracle.Accounts, "INFRABOND_ORACLE_ACCOUNTS")

	// ── Operator ──
	setStringSlice(&cfg.Operator.Accounts, "INFRABOND_OPERATOR_ACCOUNTS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "INFRABOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "INFRABOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "INFRABOND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "INFRABOND_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "INFRABOND_LOG_LEVEL")
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
