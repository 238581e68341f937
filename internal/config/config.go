// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Verification modes for LINE Login ID tokens.
const (
	VerifyNone   = "none"
	VerifySecret = "secret"
	VerifyOIDC   = "oidc"
)

// Config holds all env configuration vars for Hermes.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`
	Port        string `env:"PORT" envDefault:"7865"`

	// Raw LOG_LEVEL; parsed into LogLevel after env.Parse.
	LogLevelName string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level

	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	StateTTL          time.Duration `env:"STATE_TTL" envDefault:"10m"`
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`

	// Account id granted the admin role.
	BootstrapAccountID int64 `env:"BOOTSTRAP_ACCOUNT_ID" envDefault:"1"`

	NotifyConcurrency      int    `env:"NOTIFY_CONCURRENCY" envDefault:"8"`
	NotifyBroadcastMessage string `env:"NOTIFY_BROADCAST_MESSAGE" envDefault:"Hello LINENotify!"`

	Login  LineLogin  `envPrefix:"LINE_LOGIN_"`
	Notify LineNotify `envPrefix:"LINE_NOTIFY_"`
}

// LineLogin is the LINE Login channel.
type LineLogin struct {
	ClientID      string `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret  string `env:"CLIENT_SECRET,required,notEmpty"`
	Scope         string `env:"SCOPE" envDefault:"openid profile email"`
	AuthURL       string `env:"AUTH_URL" envDefault:"https://access.line.me/oauth2/v2.1/authorize"`
	TokenURL      string `env:"TOKEN_URL" envDefault:"https://api.line.me/oauth2/v2.1/token"`
	RevokeURL     string `env:"REVOKE_URL" envDefault:"https://api.line.me/oauth2/v2.1/revoke"`
	ProfileURL    string `env:"PROFILE_URL" envDefault:"https://api.line.me/v2/profile"`
	RedirectURI   string `env:"REDIRECT_URI" envDefault:"/signin-callback"`
	IDTokenVerify string `env:"ID_TOKEN_VERIFY" envDefault:"none"`
	Issuer        string `env:"ISSUER" envDefault:"https://access.line.me"`
}

// LineNotify is the LINE Notify service.
type LineNotify struct {
	ClientID     string `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"CLIENT_SECRET,required,notEmpty"`
	Scope        string `env:"SCOPE" envDefault:"notify"`
	AuthURL      string `env:"AUTH_URL" envDefault:"https://notify-bot.line.me/oauth/authorize"`
	TokenURL     string `env:"TOKEN_URL" envDefault:"https://notify-bot.line.me/oauth/token"`
	RevokeURL    string `env:"REVOKE_URL" envDefault:"https://notify-api.line.me/api/revoke"`
	NotifyURL    string `env:"NOTIFY_URL" envDefault:"https://notify-api.line.me/api/notify"`
	RedirectURI  string `env:"REDIRECT_URI" envDefault:"/subscribe-callback"`
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if a required variable is missing or a value is out of range.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env: %w", err)
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.StateTTL <= 0 {
		return nil, fmt.Errorf("STATE_TTL must be positive")
	}
	if cfg.HTTPClientTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_CLIENT_TIMEOUT must be positive")
	}
	if cfg.BootstrapAccountID <= 0 {
		return nil, fmt.Errorf("BOOTSTRAP_ACCOUNT_ID must be positive")
	}

	// A bad concurrency value should not disable broadcasting; fall back.
	if cfg.NotifyConcurrency <= 0 {
		slog.Warn("invalid env var, using default", "key", "NOTIFY_CONCURRENCY", "value", cfg.NotifyConcurrency, "default", 8)
		cfg.NotifyConcurrency = 8
	}

	cfg.Login.IDTokenVerify = strings.ToLower(cfg.Login.IDTokenVerify)
	switch cfg.Login.IDTokenVerify {
	case VerifyNone, VerifySecret, VerifyOIDC:
	default:
		return nil, fmt.Errorf("LINE_LOGIN_ID_TOKEN_VERIFY must be one of none, secret, oidc")
	}

	return cfg, nil
}

// parseLogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
