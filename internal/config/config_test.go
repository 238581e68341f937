package config

import (
	"log/slog"
	"testing"
	"time"
)

// --- LoadConfig ---

func TestLoadConfig(t *testing.T) {
	// Helper sets the minimum required env vars for a valid config
	setRequired := func(t *testing.T) {
		t.Helper()
		t.Setenv("DATABASE_URL", "postgres://localhost/hermes")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("LINE_LOGIN_CLIENT_ID", "login-id")
		t.Setenv("LINE_LOGIN_CLIENT_SECRET", "login-secret")
		t.Setenv("LINE_NOTIFY_CLIENT_ID", "notify-id")
		t.Setenv("LINE_NOTIFY_CLIENT_SECRET", "notify-secret")
	}

	t.Run("returns valid config with all required vars", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/hermes" {
			t.Errorf("DatabaseURL: expected %q, got %q", "postgres://localhost/hermes", cfg.DatabaseURL)
		}
		if cfg.RedisURL != "redis://localhost:6379" {
			t.Errorf("RedisURL: expected %q, got %q", "redis://localhost:6379", cfg.RedisURL)
		}
		if cfg.Login.ClientSecret != "login-secret" {
			t.Errorf("Login.ClientSecret: got %q", cfg.Login.ClientSecret)
		}
		if cfg.Notify.ClientID != "notify-id" {
			t.Errorf("Notify.ClientID: got %q", cfg.Notify.ClientID)
		}
	})

	t.Run("errors when DATABASE_URL is missing", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DATABASE_URL", "")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for missing DATABASE_URL, got nil")
		}
	})

	t.Run("errors when REDIS_URL is missing", func(t *testing.T) {
		setRequired(t)
		t.Setenv("REDIS_URL", "")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for missing REDIS_URL, got nil")
		}
	})

	t.Run("errors when LINE_LOGIN_CLIENT_SECRET is missing", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LINE_LOGIN_CLIENT_SECRET", "")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for missing LINE_LOGIN_CLIENT_SECRET, got nil")
		}
	})

	t.Run("errors when LINE_NOTIFY_CLIENT_SECRET is missing", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LINE_NOTIFY_CLIENT_SECRET", "")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for missing LINE_NOTIFY_CLIENT_SECRET, got nil")
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "7865" {
			t.Errorf("Port: expected %q, got %q", "7865", cfg.Port)
		}
		if cfg.SessionTTL != 24*time.Hour {
			t.Errorf("SessionTTL: got %v", cfg.SessionTTL)
		}
		if cfg.StateTTL != 10*time.Minute {
			t.Errorf("StateTTL: got %v", cfg.StateTTL)
		}
		if cfg.BootstrapAccountID != 1 {
			t.Errorf("BootstrapAccountID: got %d", cfg.BootstrapAccountID)
		}
		if cfg.NotifyConcurrency != 8 {
			t.Errorf("NotifyConcurrency: got %d", cfg.NotifyConcurrency)
		}
		if cfg.NotifyBroadcastMessage != "Hello LINENotify!" {
			t.Errorf("NotifyBroadcastMessage: got %q", cfg.NotifyBroadcastMessage)
		}
		if cfg.Login.Scope != "openid profile email" {
			t.Errorf("Login.Scope: got %q", cfg.Login.Scope)
		}
		if cfg.Login.RedirectURI != "/signin-callback" {
			t.Errorf("Login.RedirectURI: got %q", cfg.Login.RedirectURI)
		}
		if cfg.Notify.RedirectURI != "/subscribe-callback" {
			t.Errorf("Notify.RedirectURI: got %q", cfg.Notify.RedirectURI)
		}
		if cfg.Login.IDTokenVerify != VerifyNone {
			t.Errorf("Login.IDTokenVerify: got %q", cfg.Login.IDTokenVerify)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("LogLevel: got %v", cfg.LogLevel)
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "9000")
		t.Setenv("SESSION_TTL", "1h")
		t.Setenv("BOOTSTRAP_ACCOUNT_ID", "42")
		t.Setenv("LINE_LOGIN_ID_TOKEN_VERIFY", "OIDC")
		t.Setenv("LINE_NOTIFY_NOTIFY_URL", "http://localhost:8080/notify")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "9000" {
			t.Errorf("Port: got %q", cfg.Port)
		}
		if cfg.SessionTTL != time.Hour {
			t.Errorf("SessionTTL: got %v", cfg.SessionTTL)
		}
		if cfg.BootstrapAccountID != 42 {
			t.Errorf("BootstrapAccountID: got %d", cfg.BootstrapAccountID)
		}
		if cfg.Login.IDTokenVerify != VerifyOIDC {
			t.Errorf("Login.IDTokenVerify: got %q", cfg.Login.IDTokenVerify)
		}
		if cfg.Notify.NotifyURL != "http://localhost:8080/notify" {
			t.Errorf("Notify.NotifyURL: got %q", cfg.Notify.NotifyURL)
		}
	})

	t.Run("errors on unparseable duration", func(t *testing.T) {
		setRequired(t)
		t.Setenv("STATE_TTL", "ten minutes")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for bad STATE_TTL, got nil")
		}
	})

	t.Run("errors on non-positive SESSION_TTL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SESSION_TTL", "0s")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for zero SESSION_TTL, got nil")
		}
	})

	t.Run("errors on unknown ID token verify mode", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LINE_LOGIN_ID_TOKEN_VERIFY", "maybe")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for unknown verify mode, got nil")
		}
	})

	t.Run("falls back on non-positive NOTIFY_CONCURRENCY", func(t *testing.T) {
		setRequired(t)
		t.Setenv("NOTIFY_CONCURRENCY", "0")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.NotifyConcurrency != 8 {
			t.Errorf("NotifyConcurrency: expected fallback 8, got %d", cfg.NotifyConcurrency)
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q): got %v, want %v", in, got, want)
		}
	}
}
