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

	httpapi "github.com/i474232898/grid-profile-aggregation/internal/api/http"
	"github.com/i474232898/grid-profile-aggregation/internal/config"
	"github.com/i474232898/grid-profile-aggregation/internal/grid"
	"github.com/i474232898/grid-profile-aggregation/internal/grid/sources"
	"github.com/i474232898/grid-profile-aggregation/internal/observability"
	"github.com/i474232898/grid-profile-aggregation/internal/scheduler"
	"github.com/i474232898/grid-profile-aggregation/internal/store"
	"github.com/i474232898/grid-profile-aggregation/internal/view"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	calendar, err := grid.NewCalendar(cfg.CalendarStart, cfg.CalendarEnd)
	if err != nil {
		logr.Fatal("invalid calendar range", zap.Error(err))
	}

	days, flows := buildSources(cfg, logr)

	// In-memory view store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	monthly := grid.NewMonthlyProfileCache(days, calendar, cfg.MonthlyConcurrency, logr.Named("monthly"))
	builder := grid.NewDayProfileBuilder(days, calendar, logr.Named("day"))
	sessions := view.NewRegistry(logr.Named("sessions"))
	controller := view.NewController(calendar, builder, flows, monthly, memStore, logr.Named("views"))

	// Background warm-up and session pruning.
	sched := scheduler.New(monthly, sessions, memStore, scheduler.Options{
		WarmupOnStart: cfg.WarmupOnStart,
		SessionIdle:   cfg.SessionIdleTTL,
		PruneInterval: cfg.SessionPruneInterval,
	}, logr.Named("scheduler"))
	if err := sched.Start(); err != nil {
		logr.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Immutable: refresh results outlive the request that produced them.
	// WriteTimeout: the first month refresh waits for the whole monthly build.
	app := fiber.New(fiber.Config{
		AppName:               "grid-profile-aggregation",
		DisableStartupMessage: true,
		Immutable:             true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Minute,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "grid-profile-aggregation",
			"monthly": monthly.Status(),
		})
	})

	httpapi.RegisterMetrics(app)
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Calendar:   calendar,
		Monthly:    monthly,
		Sessions:   sessions,
		Controller: controller,
		Store:      memStore,
	})

	go func() {
		logr.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logr.Warn("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logr.Error("error during shutdown", zap.Error(err))
	}
}

// buildSources returns the day and flow record sources: over HTTP when a
// base URL is configured, from the data directory otherwise.
func buildSources(cfg *config.AppConfig, logr *zap.Logger) (grid.RecordSource, grid.RecordSource) {
	if cfg.DataBaseURL == "" {
		logr.Info("reading day files", zap.String("dir", cfg.DataDir))
		return sources.NewFileSource("day", cfg.DataDir, cfg.DayPattern, logr.Named("day-source")),
			sources.NewFileSource("flow", cfg.DataDir, cfg.FlowPattern, logr.Named("flow-source"))
	}

	// Shared HTTP client for outbound fetches.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	backoff := sources.BackoffConfig{
		MaxRetries:      cfg.FetchRetries,
		InitialInterval: cfg.FetchBackoff,
		MaxInterval:     8 * cfg.FetchBackoff,
	}
	logr.Info("fetching days over HTTP", zap.String("base_url", cfg.DataBaseURL), zap.Int("retries", cfg.FetchRetries))
	return sources.NewHTTPSource("day", httpClient, cfg.DataBaseURL, cfg.DayPattern, backoff, logr.Named("day-source")),
		sources.NewHTTPSource("flow", httpClient, cfg.DataBaseURL, cfg.FlowPattern, backoff, logr.Named("flow-source"))
}
