package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/frectonz/better-auth/internal/admin"
	"github.com/frectonz/better-auth/internal/app"
	"github.com/frectonz/better-auth/internal/auth"
	"github.com/frectonz/better-auth/internal/authz"
	"github.com/frectonz/better-auth/internal/bans"
	"github.com/frectonz/better-auth/internal/cookies"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/impersonation"
	"github.com/frectonz/better-auth/internal/observability"
	"github.com/frectonz/better-auth/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var store identity.Store = identity.NewRepository(pool)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping, session cache disabled", slog.Any("error", err))
	} else {
		store = identity.NewCachedStore(store, redisClient, cfg.SessionCacheTTL)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var policy authz.Policy
	if err := json.Unmarshal([]byte(cfg.RolePolicyJSON), &policy); err != nil {
		logger.Error("parse role policy", slog.Any("error", err))
		os.Exit(1)
	}
	engine := authz.NewEngine(cfg.AdminRoles, policy)

	cookieCtrl := cookies.NewController(cfg.SessionSecret, cfg.CookiePrefix, cfg.IsProduction())
	metrics := observability.NewMetrics()
	gate := bans.NewGate(store, cfg.BannedUserMessage, cfg.BanErrorRedirectURL, logger).WithMetrics(metrics)
	creator := bans.NewCreator(store, gate, cfg.SessionTTL)

	authHandler := auth.NewHandler(logger, auth.NewService(store, creator), cookieCtrl)
	adminService := admin.NewService(store, engine, admin.Config{
		DefaultRole:      cfg.DefaultRole,
		DefaultBanReason: cfg.DefaultBanReason,
	}, logger)
	impersonationService := impersonation.NewService(store, engine, creator, cookieCtrl, cfg.ImpersonationTTL, logger)
	adminHandler := admin.NewHandler(logger, adminService, impersonationService, store, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Store:        store,
		Cookies:      cookieCtrl,
		AuthHandler:  authHandler,
		AdminHandler: adminHandler,
		Metrics:      metrics,
	})

	logger.Info("server starting", slog.String("addr", cfg.AppAddr))
	if err := app.Serve(ctx, cfg, router); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
