package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sigflow/internal/analytics"
	"sigflow/internal/cache"
	"sigflow/internal/config"
	"sigflow/internal/database"
	"sigflow/internal/dispatch"
	"sigflow/internal/ledger"
	"sigflow/internal/logger"
	"sigflow/internal/monitor"
	"sigflow/internal/priority"
	"sigflow/internal/ratelimit"
	"sigflow/internal/scheduler"
)

// Server represents the API server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	log        logger.Logger

	db        *database.DB
	redis     *cache.RedisCache
	scheduler *scheduler.Scheduler
	metrics   *monitor.MetricsCollector
	handlers  *Handlers
}

// Dependencies carries the pipeline collaborators the API exposes.
// The server does not own them; the caller manages their lifecycle.
type Dependencies struct {
	DB         *database.DB
	Redis      *cache.RedisCache
	Store      *priority.Store
	Holder     *priority.Holder
	Dispatcher *dispatch.Dispatcher
	Runner     *dispatch.Runner
	Scheduler  *scheduler.Scheduler
	Aggregator *analytics.Aggregator
	Ledger     *ledger.Repository
	Limiter    *ratelimit.Window
	Metrics    *monitor.MetricsCollector
	Log        logger.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if cfg.Environment() == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Log
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	server := &Server{
		config:    cfg,
		router:    gin.New(),
		log:       log,
		db:        deps.DB,
		redis:     deps.Redis,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
	}

	server.handlers = &Handlers{
		Config:    NewConfigHandler(deps.Store, deps.Holder, deps.Metrics),
		Signals:   NewSignalHandler(deps.Ledger, deps.Redis),
		Dispatch:  NewDispatchHandler(deps.Dispatcher, deps.Runner, deps.Limiter),
		Scheduler: NewSchedulerHandler(deps.Scheduler),
		Analytics: NewAnalyticsHandler(deps.Aggregator),
		Watchlist: NewWatchlistHandler(deps.Runner),
		WebSocket: NewWebSocketHandler(deps.Metrics, log),
	}

	server.setupRoutes()
	return server
}

// Router returns the underlying gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Decisions returns the websocket hub that streams dispatch decisions
func (s *Server) Decisions() *WebSocketHandler {
	return s.handlers.WebSocket
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware(s.config.CORS))
	if s.config.RateLimit.Enabled {
		s.router.Use(rateLimitMiddleware(s.config.RateLimit))
	}
	if s.metrics != nil {
		s.router.Use(metricsMiddleware(s.metrics))
	}

	// Swagger documentation
	if s.config.Environment() == "development" {
		s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Prometheus metrics
	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET(s.config.Monitoring.PrometheusPath, gin.WrapH(promhttp.Handler()))
	}

	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		configs := v1.Group("/configs")
		{
			configs.GET("", s.handlers.Config.List)
			configs.POST("", s.handlers.Config.Create)
			configs.GET("/active", s.handlers.Config.GetActive)
			configs.GET("/:name", s.handlers.Config.Get)
			configs.PUT("/:name", s.handlers.Config.Update)
			configs.DELETE("/:name", s.handlers.Config.Delete)
			configs.POST("/:name/activate", s.handlers.Config.Activate)
		}

		dispatchGroup := v1.Group("/dispatch")
		{
			dispatchGroup.GET("/mode", s.handlers.Dispatch.GetMode)
			dispatchGroup.PUT("/mode", s.handlers.Dispatch.SetMode)
			dispatchGroup.POST("/check", s.handlers.Dispatch.CheckPair)
			dispatchGroup.GET("/limiter", s.handlers.Dispatch.LimiterStatus)
		}

		schedulerGroup := v1.Group("/scheduler")
		{
			schedulerGroup.GET("/status", s.handlers.Scheduler.Status)
			schedulerGroup.POST("/trigger", s.handlers.Scheduler.Trigger)
		}

		signals := v1.Group("/signals")
		{
			signals.GET("", s.handlers.Signals.List)
			signals.GET("/recent", s.handlers.Signals.Recent)
		}

		analyticsGroup := v1.Group("/analytics")
		{
			analyticsGroup.GET("/summary", s.handlers.Analytics.Summary)
			analyticsGroup.GET("/utilization", s.handlers.Analytics.Utilization)
			analyticsGroup.GET("/missed", s.handlers.Analytics.Missed)
			analyticsGroup.POST("/rebuild", s.handlers.Analytics.Rebuild)
		}

		watchlist := v1.Group("/watchlist")
		{
			watchlist.GET("", s.handlers.Watchlist.Get)
			watchlist.PUT("", s.handlers.Watchlist.Replace)
			watchlist.POST("", s.handlers.Watchlist.Add)
			watchlist.DELETE("/:ticker/:timeframe", s.handlers.Watchlist.Remove)
		}
	}

	// WebSocket routes
	ws := s.router.Group("/ws")
	{
		ws.GET("/decisions", s.handlers.WebSocket.DecisionStream)
	}

	// Health check
	s.router.GET("/health", s.healthCheck)
}

func (s *Server) healthCheck(c *gin.Context) {
	dbHealth := "ok"
	if s.db != nil {
		if err := s.db.HealthCheck(c.Request.Context()); err != nil {
			dbHealth = "error"
		}
	} else {
		dbHealth = "unavailable"
	}

	redisHealth := "ok"
	if s.redis != nil {
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			redisHealth = "error"
		}
	} else {
		redisHealth = "unavailable"
	}

	schedulerHealth := "stopped"
	if s.scheduler != nil && s.scheduler.Status().Running {
		schedulerHealth = "running"
	}

	status := http.StatusOK
	overall := "ok"
	if dbHealth == "error" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"time":   time.Now().UTC(),
		"services": gin.H{
			"database":  dbHealth,
			"redis":     redisHealth,
			"scheduler": schedulerHealth,
		},
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	s.log.Info("starting API server", "host", s.config.Server.Host, "port", s.config.Server.Port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server. Shared collaborators such as
// the database and cache are closed by their owner, not here.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("API server stopped")
	return nil
}
