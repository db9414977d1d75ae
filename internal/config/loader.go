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
// built-in defaults, applies PARLAY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PARLAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.APIKeyID, "PARLAY_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPath, "PARLAY_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "PARLAY_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "PARLAY_KALSHI_KEY_PASSWORD")
	setStr(&cfg.Kalshi.BaseURL, "PARLAY_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WSURL, "PARLAY_KALSHI_WS_URL")
	setFloat64(&cfg.Kalshi.RateLimitRPS, "PARLAY_KALSHI_RATE_LIMIT_RPS")
	setInt(&cfg.Kalshi.RateLimitBurst, "PARLAY_KALSHI_RATE_LIMIT_BURST")

	// ── Quote ──
	setStr(&cfg.Quote.YesBid, "PARLAY_QUOTE_YES_BID")
	setStr(&cfg.Quote.NoBid, "PARLAY_QUOTE_NO_BID")
	setBool(&cfg.Quote.RestRemainder, "PARLAY_QUOTE_REST_REMAINDER")
	setBool(&cfg.Quote.AutoConfirm, "PARLAY_QUOTE_AUTO_CONFIRM")
	setStringSlice(&cfg.Quote.TargetLegs, "PARLAY_QUOTE_TARGET_LEGS")
	setInt(&cfg.Quote.TaskLimit, "PARLAY_QUOTE_TASK_LIMIT")

	// ── Stream ──
	setBool(&cfg.Stream.ReconnectEnabled, "PARLAY_STREAM_RECONNECT_ENABLED")
	setDuration(&cfg.Stream.ReconnectBaseDelay, "PARLAY_STREAM_RECONNECT_BASE_DELAY")
	setDuration(&cfg.Stream.ReconnectMaxDelay, "PARLAY_STREAM_RECONNECT_MAX_DELAY")
	setInt(&cfg.Stream.ReconnectMaxAttempts, "PARLAY_STREAM_RECONNECT_MAX_ATTEMPTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PARLAY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PARLAY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PARLAY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PARLAY_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "PARLAY_SERVER_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "PARLAY_SERVER_RATE_LIMIT_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PARLAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARLAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARLAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARLAY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PARLAY_LOG_LEVEL")
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
