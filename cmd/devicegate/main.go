package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/device-gate/pkg/client"
	"github.com/tendant/device-gate/pkg/config"
	"github.com/tendant/device-gate/pkg/fingerprint"
	"github.com/tendant/device-gate/pkg/gate"
	"github.com/tendant/device-gate/pkg/notify"
	"github.com/tendant/device-gate/pkg/revoke"
	revokeapi "github.com/tendant/device-gate/pkg/revoke/api"
	"github.com/tendant/device-gate/pkg/slot"
)

type Config struct {
	AppConfig      app.AppConfig
	DatabaseConfig config.DatabaseConfig
	JwtConfig      config.JwtConfig
	GateConfig     config.GateConfig
	EmailConfig    config.EmailConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile()

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	if err := cfg.GateConfig.Validate(); err != nil {
		slog.Error("Invalid gate configuration", "err", err)
		os.Exit(-1)
	}

	repo, err := newSlotRepository(cfg)
	if err != nil {
		slog.Error("Failed to create slot repository",
			"persistenceType", cfg.GateConfig.PersistenceType, "err", err)
		os.Exit(-1)
	}

	generator := fingerprint.NewDefaultGenerator()
	gateService := gate.NewServiceWithRetryBudget(repo, generator, cfg.GateConfig.RetryBudget)
	revokeService := revoke.NewService(repo)
	tokenService := revoke.NewActionTokenService(cfg.JwtConfig.Secret, cfg.JwtConfig.Issuer)

	terminator := client.NewCookieSessionTerminator(
		cfg.JwtConfig.CookieHttpOnly, cfg.JwtConfig.CookieSecure)

	middleware := gate.NewMiddleware(gateService, gate.MiddlewareConfig{
		DenialURL:      cfg.GateConfig.DenialURL,
		BypassPrefixes: cfg.GateConfig.SplitBypassPrefixes(),
	}, terminator)

	if cfg.EmailConfig.Enabled() {
		notifier, err := notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.EmailConfig.Host,
			Port:     cfg.EmailConfig.Port,
			TLS:      cfg.EmailConfig.TLS,
			Username: cfg.EmailConfig.Username,
			Password: cfg.EmailConfig.Password,
			From:     cfg.EmailConfig.From,
			To:       cfg.EmailConfig.To,
		})
		if err != nil {
			slog.Error("Failed to create email notifier", "err", err)
			os.Exit(-1)
		}
		middleware.WithNotifier(notifier)
	} else {
		middleware.WithNotifier(notify.NewSlogNotifier())
	}

	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.Secret), nil)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	// Public denial page: reachable without authentication so the
	// post-logout redirect always lands
	server.R.Get(denialPath(cfg.GateConfig.DenialURL), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Your account has been blocked because it exceeded the device limit.\n" +
			"Please contact an administrator to restore access.\n"))
	})

	// Admin surface: authenticated, admin-only, never intercepted by the
	// gate itself
	server.R.Group(func(r chi.Router) {
		r.Use(client.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Use(client.AuthUserMiddleware)
		r.Use(client.RequireRole("admin", "superadmin"))
		r.Mount(cfg.GateConfig.AdminPathPrefix, revokeapi.Handler(
			revokeapi.NewRevokeHandler(revokeService, tokenService)))
	})

	// Application surface: every authenticated request passes the
	// redirector (already-blocked users) and the admission gate
	server.R.Group(func(r chi.Router) {
		r.Use(client.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Use(client.AuthUserMiddleware)
		r.Use(middleware.Redirector)
		r.Use(middleware.Handler)

		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			authCtx := client.GetAuthContext(r)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte("Signed in as " + authCtx.User.UserId + "\n"))
		})
	})

	slog.Info("Starting device gate",
		"maxDevices", cfg.GateConfig.MaxDevices,
		"persistenceType", cfg.GateConfig.PersistenceType,
		"denialURL", cfg.GateConfig.DenialURL)

	server.Run()
}

// newSlotRepository builds the slot repository selected by configuration
func newSlotRepository(cfg Config) (slot.Repository, error) {
	options := slot.RepositoryOptions{MaxDevices: cfg.GateConfig.MaxDevices}

	repoConfig := slot.RepositoryConfig{
		DataDir: cfg.GateConfig.DataDir,
		Options: &options,
	}

	if cfg.GateConfig.PersistenceType == "postgres" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseConfig.ToDatabaseURL())
		if err != nil {
			return nil, err
		}
		repoConfig.DB = pool
	}

	return slot.NewRepository(cfg.GateConfig.PersistenceType, repoConfig)
}

// denialPath extracts the local route for the denial page so an absolute
// denial URL still gets a page served by this instance
func denialPath(denialURL string) string {
	if u, err := url.Parse(denialURL); err == nil && u.Path != "" {
		return u.Path
	}
	return denialURL
}

// loadEnvFile loads environment variables from a .env file if present,
// first next to the executable and then in the working directory
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("Failed to get executable path", "error", err)
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, err := os.Getwd()
		if err != nil {
			slog.Error("Failed to get current working directory", "error", err)
			return
		}
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return
	}

	if err := godotenv.Load(envFile); err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}
	slog.Info("Configuration loaded from .env file", "path", envFile)
}
