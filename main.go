package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/hermes/internal/auth"
	"github.com/MGallo-Code/hermes/internal/config"
	"github.com/MGallo-Code/hermes/internal/notify"
	"github.com/MGallo-Code/hermes/internal/oauth"
	"github.com/MGallo-Code/hermes/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis client: %w", err)
	}
	defer rdb.Close()

	rs := store.NewRedisStore(rdb)

	ids, err := newIDTokenDecoder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up id token verification: %w", err)
	}

	h := newAuthHandler(cfg, ps, rs, ids)

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(h)}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("hermes listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting new conns and waits for in-flight requests (a broadcast included).
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// newIDTokenDecoder picks the ID token verifier for LINE_LOGIN_ID_TOKEN_VERIFY.
// "oidc" performs discovery against the issuer, so it needs network at startup.
func newIDTokenDecoder(ctx context.Context, cfg *config.Config) (*oauth.IDTokenDecoder, error) {
	switch cfg.Login.IDTokenVerify {
	case config.VerifySecret:
		return &oauth.IDTokenDecoder{Verifier: &oauth.SecretVerifier{
			Secret:   []byte(cfg.Login.ClientSecret),
			Issuer:   cfg.Login.Issuer,
			Audience: cfg.Login.ClientID,
		}}, nil
	case config.VerifyOIDC:
		v, err := oauth.NewOIDCVerifier(ctx, cfg.Login.Issuer, cfg.Login.ClientID)
		if err != nil {
			return nil, err
		}
		return &oauth.IDTokenDecoder{Verifier: v}, nil
	default:
		slog.Warn("id token signatures are not verified", "mode", cfg.Login.IDTokenVerify)
		return &oauth.IDTokenDecoder{}, nil
	}
}

// newAuthHandler wires both LINE providers, the notify client, and the stores into one handler.
func newAuthHandler(cfg *config.Config, ps *store.PostgresStore, rs *store.RedisStore, ids *oauth.IDTokenDecoder) *auth.AuthHandler {
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	login := &oauth.Provider{
		Name:         "line-login",
		ClientID:     cfg.Login.ClientID,
		ClientSecret: cfg.Login.ClientSecret,
		Scope:        cfg.Login.Scope,
		AuthURL:      cfg.Login.AuthURL,
		TokenURL:     cfg.Login.TokenURL,
		RevokeURL:    cfg.Login.RevokeURL,
		ProfileURL:   cfg.Login.ProfileURL,
		RedirectURI:  cfg.Login.RedirectURI,
		HTTPClient:   httpClient,
	}
	notifyProvider := &oauth.Provider{
		Name:         "line-notify",
		ClientID:     cfg.Notify.ClientID,
		ClientSecret: cfg.Notify.ClientSecret,
		Scope:        cfg.Notify.Scope,
		AuthURL:      cfg.Notify.AuthURL,
		TokenURL:     cfg.Notify.TokenURL,
		RevokeURL:    cfg.Notify.RevokeURL,
		RedirectURI:  cfg.Notify.RedirectURI,
		HTTPClient:   httpClient,
	}
	nc := notify.NewClient(cfg.Notify.NotifyURL, cfg.Notify.RevokeURL, httpClient)

	return &auth.AuthHandler{
		PS:       ps,
		RS:       rs,
		Login:    login,
		Notify:   notifyProvider,
		IDTokens: ids,
		State:    &auth.StateGuard{Store: rs, TTL: cfg.StateTTL},
		Sessions: &auth.SessionIssuer{Store: rs, TTL: cfg.SessionTTL, BootstrapID: cfg.BootstrapAccountID},
		Linker:   &auth.AccountLinker{Store: ps},
		Grants:   &notify.GrantManager{Store: ps, Remote: nc},
		Dispatcher: &notify.Dispatcher{
			Recipients:  ps,
			Pusher:      nc,
			Concurrency: cfg.NotifyConcurrency,
		},
		BroadcastMessage: cfg.NotifyBroadcastMessage,
	}
}

// requestTimeout bounds every route except /notifyall, whose broadcast is bounded
// per push by HTTP_CLIENT_TIMEOUT instead.
var requestTimeout = 60 * time.Second

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Every route sees the browser session (anonymous or signed in) when one exists.
	r.Use(h.LoadSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/health", h.CheckHealth)
		r.Get("/signin", h.SignIn)
		r.Get("/signin-callback", h.SigninCallback)
		r.Get("/signout", h.SignOut)

		// Signed-in routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/subscribe", h.Subscribe)
			r.Get("/subscribe-callback", h.SubscribeCallback)
			r.Get("/unsubscribe", h.Unsubscribe)
			r.Get("/my", h.My)
			r.Get("/profile", h.Profile)

			r.With(h.RequireAdmin).Get("/subscribers", h.Subscribers)
		})
	})

	// A broadcast must reach every subscriber, so it runs without the request timeout.
	// RequireAdmin reads the session RequireAuth already checked.
	r.With(h.RequireAuth, h.RequireAdmin).Get("/notifyall", h.NotifyAll)

	return r
}
