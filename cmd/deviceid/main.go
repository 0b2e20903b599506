package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-deviceid/pkg/config"
	"github.com/tendant/simple-deviceid/pkg/device"
	deviceapi "github.com/tendant/simple-deviceid/pkg/device/api"
	"github.com/tendant/simple-deviceid/pkg/identity"
	"github.com/tendant/simple-deviceid/pkg/ratelimit"
)

func main() {
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err = dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(1)
		}
		defer pool.Close()
		slog.Info("Database connected", "database", dbConfig.Database)
	}

	repo, resolver, err := buildBackends(ctx, cfg, pool)
	if err != nil {
		slog.Error("Failed to initialize storage", "persistence", cfg.PersistenceType, "error", err)
		os.Exit(1)
	}

	store := device.NewProfileStore(repo)
	service := device.NewService(store, resolver,
		device.WithMaxProfilesAllowed(cfg.MaxProfilesAllowed),
		device.WithAutoStore(cfg.AutoStoreProfiles),
	)

	trustProxy := cfg.RateLimit.TrustProxyHeaders
	handler := deviceapi.NewDeviceHandler(service, deviceapi.WithClientIPFunc(func(r *http.Request) string {
		return ratelimit.ClientIP(r, trustProxy)
	}))

	limiter := ratelimit.NewMiddleware(cfg.RateLimit.ToMiddlewareConfig())
	go limiter.Run(ctx)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		if cfg.JWTSecret != "" {
			tokenAuth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator(tokenAuth))
		} else {
			slog.Warn("DEVICEID_JWT_SECRET not set, device API is unauthenticated")
		}
		if cfg.RateLimit.Enabled {
			r.Use(limiter.Handler)
		}
		r.Mount("/api/device", deviceapi.Handler(handler))
	})

	slog.Info("Device ID service ready",
		"persistence", cfg.PersistenceType,
		"max_profiles_allowed", service.MaxProfilesAllowed(),
		"auto_store", service.AutoStoreProfiles(),
	)

	server.Run()
}

// buildBackends creates the profile repository and identity resolver for the configured
// persistence type
func buildBackends(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (device.ProfileRepository, identity.Resolver, error) {
	if cfg.UsesPostgres() {
		repo := device.NewPostgresProfileRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		resolver := identity.NewPostgresResolver(pool)
		if err := resolver.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return repo, resolver, nil
	}

	repo, err := device.NewProfileRepository(cfg.PersistenceType, device.RepositoryConfig{DataDir: cfg.DataDir})
	if err != nil {
		return nil, nil, err
	}

	resolver := identity.NewInMemResolver()
	seeds, err := cfg.Seeds()
	if err != nil {
		return nil, nil, err
	}
	for _, seed := range seeds {
		resolver.Add(seed)
		slog.Info("Seeded identity", "realm", seed.Realm, "username", seed.Username)
	}
	if len(seeds) == 0 {
		slog.Warn("No identities seeded, every lookup will fail", "hint", "set DEVICEID_SEED_IDENTITIES")
	}
	return repo, resolver, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
