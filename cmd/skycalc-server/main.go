package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/skycalc/internal/api/http"
	"github.com/i474232898/skycalc/internal/config"
	"github.com/i474232898/skycalc/internal/logging"
	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/scheduler"
	"github.com/i474232898/skycalc/internal/skycalc"
	"github.com/i474232898/skycalc/internal/skycalc/providers"
	"github.com/i474232898/skycalc/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlog.Sync()

	schema, err := params.Default()
	if cfg.ParamsFile != "" {
		schema, err = params.LoadFile(cfg.ParamsFile)
	}
	if err != nil {
		zlog.Fatal("failed to load parameter catalog", zap.Error(err))
	}

	// Response cache: SQLite when configured, in-memory otherwise.
	var cache skycalc.Cache
	if cfg.CacheDB != "" {
		db, err := store.OpenSQLite(cfg.CacheDB, cfg.CacheMaxAge)
		if err != nil {
			zlog.Fatal("failed to open cache", zap.Error(err))
		}
		defer db.Close()
		cache = db
	} else {
		cache = store.NewMemoryStore(cfg.CacheMaxEntries, cfg.CacheMaxAge)
	}

	// Shared HTTP client for outbound calls to the SkyCalc server.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	service := skycalc.NewService(
		schema,
		cache,
		providers.NewAlmanacClient(httpClient, cfg.Server, zlog),
		providers.NewSkyModelClient(httpClient, cfg.Server, zlog),
		zlog,
	)
	registry := skycalc.NewRegistry(service)

	// Scheduler that keeps tracked sessions' almanac values current.
	sched := scheduler.New(registry, cfg.AlmanacRefreshInterval, zlog)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Sky-model requests can take tens of seconds; allow for the client timeout.
	app := fiber.New(fiber.Config{
		AppName:               "skycalc",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "skycalc",
			"sessions": len(registry.Sessions()),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, registry)

	go func() {
		zlog.Info("listening", zap.String("port", cfg.Port), zap.String("upstream", cfg.Server))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}
