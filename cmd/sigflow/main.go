package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"sigflow/internal/alerting"
	"sigflow/internal/analytics"
	"sigflow/internal/api"
	"sigflow/internal/cache"
	"sigflow/internal/config"
	"sigflow/internal/database"
	"sigflow/internal/delivery"
	"sigflow/internal/detector"
	"sigflow/internal/dispatch"
	"sigflow/internal/ledger"
	"sigflow/internal/logger"
	"sigflow/internal/monitor"
	"sigflow/internal/priority"
	"sigflow/internal/ratelimit"
	"sigflow/internal/scheduler"
	"sigflow/internal/scoring"
)

// recentDecisionsMax caps the cached recent-decision feed.
const recentDecisionsMax = 100

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Configuration file path")
	loggerConfigPath := flag.String("logger-config", "configs/logger.yaml", "Optional logger configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnvOverrides(config.NewEnvManager("", ""))

	if _, err := os.Stat(*loggerConfigPath); err == nil {
		if err := logger.InitFromConfig(*loggerConfigPath); err != nil {
			log.Fatalf("Failed to load logger configuration: %v", err)
		}
	} else {
		logger.Init(logger.Config{
			Level:    logger.LogLevel(cfg.Logging.Level),
			Format:   logger.LogFormat(cfg.Logging.Format),
			Output:   cfg.Logging.Output,
			Filename: cfg.Logging.Filename,
		})
	}

	app, err := NewApp(cfg)
	if err != nil {
		logger.GetGlobalLogger().Fatal("failed to build application", "error", err.Error())
	}

	if err := app.Start(); err != nil {
		logger.GetGlobalLogger().Fatal("failed to start application", "error", err.Error())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	received := <-sigChan

	app.log.Info("shutdown signal received", "signal", received.String())
	if err := app.Shutdown(); err != nil {
		app.log.Error("shutdown finished with errors", "error", err.Error())
		os.Exit(1)
	}
}

// App wires the pipeline together and owns collaborator lifecycles.
type App struct {
	cfg *config.Config
	log logger.Logger

	db         *database.DB
	cache      cache.Cacher
	redis      *cache.RedisCache
	ledger     *ledger.Repository
	limiter    *ratelimit.Window
	metrics    *monitor.MetricsCollector
	aggregator *analytics.Aggregator
	alerts     *alerting.Manager
	scheduler  *scheduler.Scheduler
	cron       *cron.Cron
	server     *api.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp builds the pipeline from configuration.
func NewApp(cfg *config.Config) (*App, error) {
	lg := logger.GetGlobalLogger()
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{cfg: cfg, log: lg, ctx: ctx, cancel: cancel}

	db, err := database.NewConnection(&database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		Timeout:         cfg.Database.Timeout,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	app.db = db

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
		if err != nil {
			app.closeOnBuildError()
			return nil, err
		}
		if err := migrator.Up(); err != nil {
			migrator.Close()
			app.closeOnBuildError()
			return nil, err
		}
		migrator.Close()
		lg.Info("database migrations applied", "path", cfg.Database.MigrationsPath)
	}

	pipelineCache, err := cache.NewCacher(&cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		app.closeOnBuildError()
		return nil, err
	}
	app.cache = pipelineCache
	if rc, ok := pipelineCache.(*cache.RedisCache); ok {
		app.redis = rc
	}

	app.metrics = monitor.NewMetricsCollector()
	db.SetMonitorCallback(func(stats *database.PoolStats) {
		app.metrics.UpdatePoolStats(stats.OpenConnections, stats.InUse, stats.Idle)
	})

	store := priority.NewStore(db)
	holder := priority.NewHolder()

	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	defer bootCancel()

	if cfg.Priority.SeedDefault {
		seeded, err := store.SeedDefault(bootCtx, &priority.Configuration{
			Name: cfg.Priority.ConfigName,
			Thresholds: scoring.Thresholds{
				Critical: cfg.Priority.Thresholds.Critical,
				High:     cfg.Priority.Thresholds.High,
				Medium:   cfg.Priority.Thresholds.Medium,
				Low:      cfg.Priority.Thresholds.Low,
			},
			VIPTickers:    cfg.Priority.VIPTickers,
			VIPTimeframes: cfg.Priority.VIPTimeframes,
			MinLevel:      cfg.Priority.ParsedMinLevel(),
		})
		if err != nil {
			app.closeOnBuildError()
			return nil, err
		}
		if seeded {
			lg.Info("seeded default priority configuration", "name", cfg.Priority.ConfigName)
		}
	}

	active, err := store.GetActive(bootCtx)
	if err != nil {
		app.closeOnBuildError()
		return nil, err
	}
	if active != nil {
		holder.Swap(active)
		lg.Info("loaded active priority configuration", "name", active.Name)
	} else {
		lg.Warn("no active priority configuration, dispatch fails closed until one is activated")
	}

	app.ledger = ledger.NewRepository(db)
	app.limiter = ratelimit.NewWindow(cfg.Dispatch.RateLimit.MaxSends, cfg.Dispatch.RateLimit.Window)

	deliverer, err := delivery.New(cfg.Delivery, app.redis, lg)
	if err != nil {
		app.closeOnBuildError()
		return nil, err
	}

	dispatcher := dispatch.NewDispatcher(
		monitor.InstrumentLedger(app.ledger, app.metrics),
		app.limiter,
		holder,
		monitor.InstrumentDeliverer(deliverer, app.metrics),
		lg,
	)
	dispatcher.SetOnlyCritical(cfg.Dispatch.OnlyCritical)

	fetcher := monitor.InstrumentFetcher(detector.NewClient(cfg.Detector, lg), app.metrics)
	runner := dispatch.NewRunner(dispatcher, fetcher, watchlistPairs(cfg.Watchlist), lg)

	app.scheduler, err = scheduler.New(cfg.Scheduler, monitor.InstrumentRunner(runner, app.metrics), lg)
	if err != nil {
		app.closeOnBuildError()
		return nil, err
	}

	app.alerts = alerting.NewManager(nil, lg)
	app.alerts.RegisterChannel(alerting.NewLogChannel(lg))
	if cfg.Alerting.Enabled && cfg.Alerting.WebhookURL != "" {
		app.alerts.RegisterChannel(alerting.NewWebhookChannel(&alerting.WebhookConfig{
			Enabled: true,
			URL:     cfg.Alerting.WebhookURL,
		}))
	}
	dispatcher.SetAlerter(app.alerts)
	runner.SetAlerter(app.alerts)

	aggregator := analytics.NewAggregator(db, app.ledger, lg).
		WithCache(pipelineCache, cfg.Analytics.CacheTTL)

	app.server = api.NewServer(cfg, api.Dependencies{
		DB:         db,
		Redis:      app.redis,
		Store:      store,
		Holder:     holder,
		Dispatcher: dispatcher,
		Runner:     runner,
		Scheduler:  app.scheduler,
		Aggregator: aggregator,
		Ledger:     app.ledger,
		Limiter:    app.limiter,
		Metrics:    app.metrics,
		Log:        lg,
	})

	dispatcher.OnDecision(func(ev dispatch.Evaluation) {
		app.metrics.RecordEvaluation(
			string(ev.Decision.Outcome),
			ev.Decision.ReasonString(),
			float64(ev.Decision.Breakdown.Total),
			string(ev.Decision.Breakdown.Level),
		)
		app.metrics.UpdateLimiterFill(app.limiter.Len(time.Now()))
		app.server.Decisions().Broadcast(ev)
		if app.redis != nil {
			go app.cacheDecision(ev)
		}
	})

	app.cron = cron.New()
	if _, err := app.cron.AddFunc(cfg.Analytics.RebuildCron, app.rebuildAnalytics); err != nil {
		app.closeOnBuildError()
		return nil, err
	}
	if _, err := app.cron.AddFunc(cfg.Analytics.CleanupCron, app.cleanupLedger); err != nil {
		app.closeOnBuildError()
		return nil, err
	}

	app.aggregator = aggregator
	return app, nil
}

// Start brings up the alert worker, scheduler, cron jobs and API server.
func (a *App) Start() error {
	a.alerts.Start()
	if err := a.scheduler.Start(); err != nil {
		return err
	}
	a.cron.Start()

	go func() {
		if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Fatal("API server failed", "error", err.Error())
		}
	}()

	a.log.Info("sigflow started",
		"env", a.cfg.Environment(),
		"version", a.cfg.App.Version,
		"delivery", a.cfg.Delivery.Channel,
		"pairs", len(watchlistPairs(a.cfg.Watchlist)),
	)
	return nil
}

// Shutdown stops the pipeline in reverse dependency order.
func (a *App) Shutdown() error {
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if err := a.server.Stop(ctx); err != nil {
		firstErr = err
		a.log.Error("failed to stop API server", "error", err.Error())
	}
	if err := a.scheduler.Stop(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		a.log.Error("failed to stop scheduler", "error", err.Error())
	}

	cronDone := a.cron.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		a.log.Warn("timed out waiting for cron jobs to finish")
	}

	a.alerts.Stop()

	if err := a.cache.Close(); err != nil {
		a.log.Error("failed to close cache", "error", err.Error())
	}
	if err := a.db.Close(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		a.log.Error("failed to close database", "error", err.Error())
	}

	a.log.Info("sigflow stopped")
	return firstErr
}

// closeOnBuildError releases partially-built resources when NewApp bails.
func (a *App) closeOnBuildError() {
	a.cancel()
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// rebuildAnalytics recomputes yesterday's summaries.
func (a *App) rebuildAnalytics() {
	start := time.Now()
	day := time.Now().UTC().AddDate(0, 0, -1)

	summaries, err := a.aggregator.RebuildDate(a.ctx, day)
	if err != nil {
		a.metrics.RecordAnalyticsRebuild("error", time.Since(start))
		a.log.Error("scheduled analytics rebuild failed", "date", day.Format("2006-01-02"), "error", err.Error())
		a.alerts.Error(a.ctx, "Analytics rebuild failed",
			"The nightly analytics rebuild did not complete", map[string]interface{}{
				"date":  day.Format("2006-01-02"),
				"error": err.Error(),
			})
		return
	}
	a.metrics.RecordAnalyticsRebuild("success", time.Since(start))
	a.log.Info("scheduled analytics rebuild finished",
		"date", day.Format("2006-01-02"), "groups", len(summaries), "duration", time.Since(start).String())
}

// cleanupLedger prunes ledger entries past the retention horizon.
func (a *App) cleanupLedger() {
	horizon := time.Now().UTC().AddDate(0, 0, -a.cfg.Analytics.RetentionDays)

	removed, err := a.ledger.Cleanup(a.ctx, horizon)
	if err != nil {
		a.log.Error("scheduled ledger cleanup failed", "error", err.Error())
		return
	}
	if removed > 0 {
		a.log.Info("scheduled ledger cleanup finished", "removed", removed, "older_than", horizon.Format(time.RFC3339))
	}
}

// cacheDecision pushes an evaluation onto the recent-decision feed.
func (a *App) cacheDecision(ev dispatch.Evaluation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.redis.PushRecent(ctx, api.RecentDecisionsKey, ev, recentDecisionsMax); err != nil {
		a.log.Warn("failed to cache decision", "error", err.Error())
	}
}

// watchlistPairs expands the configured tickers and timeframes into the
// monitored pair list.
func watchlistPairs(cfg config.WatchlistConfig) []dispatch.Pair {
	pairs := make([]dispatch.Pair, 0, len(cfg.Tickers)*len(cfg.Timeframes))
	for _, ticker := range cfg.Tickers {
		for _, timeframe := range cfg.Timeframes {
			pairs = append(pairs, dispatch.Pair{Ticker: ticker, Timeframe: timeframe})
		}
	}
	return pairs
}
