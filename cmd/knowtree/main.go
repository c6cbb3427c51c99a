// Package main is the entry point for the knowtree category service.
// It loads configuration, connects to the backing stores, sets up routing,
// and starts the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knowtree/internal/cache"
	"knowtree/internal/category"
	"knowtree/internal/config"
	"knowtree/internal/database"
	"knowtree/internal/handlers"
	"knowtree/internal/middleware"
	"knowtree/internal/router"
	"knowtree/internal/store"
	"knowtree/internal/tree"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"store", cfg.StoreDriver,
		"max_depth", cfg.MaxDepth,
	)

	var (
		nodes   category.NodeStore
		counter category.ContentCounter
		ping    func(ctx context.Context) error
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		nodes = store.NewMemoryCategoryStore()
		counter = store.NewMemoryContentCounter()

	default:
		db := mustOpenDatabase(cfg)
		defer db.Close()
		nodes = store.NewCategoryStore(db)
		counter = store.NewContentCounter(db)
		ping = db.PingContext
	}

	svcCfg := category.Config{
		MaxDepth:          cfg.MaxDepth,
		Names:             tree.NameRule{FoldCase: cfg.NameFoldCase, Trim: cfg.NameTrim},
		RecentWindow:      cfg.RecentWindow,
		CounterTimeout:    cfg.CounterTimeout,
		CounterRetries:    cfg.CounterRetries,
		CounterRetryDelay: cfg.CounterRetryDelay,
		SnapshotTTL:       cfg.ViewCacheTTL,
	}

	var opts []category.Option
	if cfg.ValkeyEnabled {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer valkeyClient.Close()

		treeCache := cache.NewTreeCache(valkeyClient, cache.DefaultKeyPrefix, cfg.ViewCacheTTL)
		treeCache.Purge(context.Background())
		opts = append(opts, category.WithViewCache(treeCache))
	} else {
		slog.Info("valkey disabled, tree views are cached per instance")
	}

	svc := category.New(nodes, counter, svcCfg, opts...)

	var limiter *middleware.RateLimiter
	if cfg.WriteRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.WriteRateLimit, time.Minute)
		defer limiter.Stop()
	}

	r := router.New(handlers.NewCategories(svc), router.Options{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		WriteLimiter:   limiter,
		Ping:           ping,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

// mustOpenDatabase connects to PostgreSQL, applies migrations and, in
// development, seeds a sample tree.
func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// No-op if categories already exist.
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}
	return db
}
