package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openshelf/authz/internal/app"
	"github.com/openshelf/authz/internal/catalog"
	"github.com/openshelf/authz/internal/identity"
	"github.com/openshelf/authz/internal/observability"
	"github.com/openshelf/authz/internal/override"
	"github.com/openshelf/authz/internal/platform/cache"
	"github.com/openshelf/authz/internal/platform/db"
	"github.com/openshelf/authz/internal/resolve"
	"github.com/openshelf/authz/internal/shared"
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

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The resolver degrades to direct computation without Redis, so a
	// missing cache is a warning, not a startup failure.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, resolution cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	cat := catalog.New()
	auditLogger := shared.NewAuditLogger(pool)

	overrideRepo := override.NewRepository(pool)
	resolveCache := resolve.NewCache(redisClient, cfg.CacheTTL)
	overrideService := override.NewService(overrideRepo, cat, auditLogger, resolveCache, logger)
	overrideHandler := override.NewHandler(logger, overrideService)

	engine := resolve.NewEngine(cat, overrideRepo)
	resolver := resolve.NewResolver(engine, resolveCache, logger)
	identityRepo := identity.NewRepository(pool)
	resolveHandler := resolve.NewHandler(logger, resolver, identityRepo)

	catalogHandler := catalog.NewHandler(cat)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalogHandler,
		OverrideHandler: overrideHandler,
		ResolveHandler:  resolveHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authz service listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
