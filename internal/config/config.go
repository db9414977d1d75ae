// Package config defines the top-level configuration for the quoting bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PARLAY_* environment variables.
type Config struct {
	Kalshi   KalshiConfig `toml:"kalshi"`
	Quote    QuoteConfig  `toml:"quote"`
	Stream   StreamConfig `toml:"stream"`
	Server   ServerConfig `toml:"server"`
	Notify   NotifyConfig `toml:"notify"`
	LogLevel string       `toml:"log_level"`
}

// KalshiConfig holds exchange endpoints and credentials. Credentials here
// are optional: the operator can also supply them per session through the
// stream/start endpoint.
type KalshiConfig struct {
	APIKeyID         string  `toml:"api_key_id"`
	PrivateKeyPath   string  `toml:"private_key_path"`
	EncryptedKeyPath string  `toml:"encrypted_key_path"`
	KeyPassword      string  `toml:"key_password"`
	BaseURL          string  `toml:"base_url"`
	WSURL            string  `toml:"ws_url"`
	RateLimitRPS     float64 `toml:"rate_limit_rps"`
	RateLimitBurst   int     `toml:"rate_limit_burst"`
}

// HasCredentials reports whether a stream session can be auto-started from
// the config alone.
func (k KalshiConfig) HasCredentials() bool {
	return k.APIKeyID != "" && (k.PrivateKeyPath != "" || k.EncryptedKeyPath != "")
}

// QuoteConfig holds the static quoting parameters.
type QuoteConfig struct {
	YesBid        string   `toml:"yes_bid"`
	NoBid         string   `toml:"no_bid"`
	RestRemainder bool     `toml:"rest_remainder"`
	AutoConfirm   bool     `toml:"auto_confirm"`
	TargetLegs    []string `toml:"target_legs"`
	TaskLimit     int      `toml:"task_limit"`
}

// StreamConfig holds the reconnect policy for the communications stream.
type StreamConfig struct {
	ReconnectEnabled     bool     `toml:"reconnect_enabled"`
	ReconnectBaseDelay   duration `toml:"reconnect_base_delay"`
	ReconnectMaxDelay    duration `toml:"reconnect_max_delay"`
	ReconnectMaxAttempts int      `toml:"reconnect_max_attempts"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:        "https://api.elections.kalshi.com",
			WSURL:          "wss://api.elections.kalshi.com/trade-api/ws/v2",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Quote: QuoteConfig{
			YesBid:        "0.0010",
			NoBid:         "0.5600",
			RestRemainder: false,
			AutoConfirm:   false,
			TaskLimit:     32,
		},
		Stream: StreamConfig{
			ReconnectEnabled:   true,
			ReconnectBaseDelay: duration{2 * time.Second},
			ReconnectMaxDelay:  duration{60 * time.Second},
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS:   0,
			RateLimitBurst: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"quote_sent", "quote_accepted", "quote_confirmed", "quote_confirmation_error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.WSURL == "" {
		errs = append(errs, "kalshi: ws_url must not be empty")
	}
	if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
		errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
	}
	if c.Kalshi.RateLimitRPS < 0 {
		errs = append(errs, "kalshi: rate_limit_rps must be >= 0")
	}

	one := decimal.NewFromInt(1)
	for name, value := range map[string]string{"yes_bid": c.Quote.YesBid, "no_bid": c.Quote.NoBid} {
		p, err := decimal.NewFromString(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("quote: %s %q is not a decimal", name, value))
			continue
		}
		if p.IsNegative() || p.GreaterThan(one) {
			errs = append(errs, fmt.Sprintf("quote: %s %q out of range [0,1]", name, value))
		}
	}
	if c.Quote.TaskLimit < 1 {
		errs = append(errs, "quote: task_limit must be >= 1")
	}

	if c.Stream.ReconnectEnabled {
		if c.Stream.ReconnectBaseDelay.Duration <= 0 {
			errs = append(errs, "stream: reconnect_base_delay must be > 0")
		}
		if c.Stream.ReconnectMaxDelay.Duration < c.Stream.ReconnectBaseDelay.Duration {
			errs = append(errs, "stream: reconnect_max_delay must be >= reconnect_base_delay")
		}
		if c.Stream.ReconnectMaxAttempts < 0 {
			errs = append(errs, "stream: reconnect_max_attempts must be >= 0")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Telegram fields must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
