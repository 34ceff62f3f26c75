package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sigflow/internal/signal"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Watchlist  WatchlistConfig  `yaml:"watchlist"`
	Priority   PriorityConfig   `yaml:"priority"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Detector   DetectorConfig   `yaml:"detector"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents API server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpen         int           `yaml:"max_open"`
	MaxIdle         int           `yaml:"max_idle"`
	Timeout         time.Duration `yaml:"timeout"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// WatchlistConfig represents the monitored ticker/timeframe pairs
type WatchlistConfig struct {
	Tickers    []string `yaml:"tickers"`
	Timeframes []string `yaml:"timeframes"`
}

// PriorityConfig seeds the default priority configuration row on first
// boot, when the configuration table is still empty.
type PriorityConfig struct {
	ConfigName    string           `yaml:"config_name"`
	MinLevel      string           `yaml:"min_level"`
	Thresholds    ThresholdsConfig `yaml:"thresholds"`
	VIPTickers    []string         `yaml:"vip_tickers"`
	VIPTimeframes []string         `yaml:"vip_timeframes"`
	SeedDefault   bool             `yaml:"seed_default"`
}

// ThresholdsConfig represents the four score cut points
type ThresholdsConfig struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
	Low      int `yaml:"low"`
}

// DispatchConfig represents dispatcher configuration
type DispatchConfig struct {
	OnlyCritical bool              `yaml:"only_critical"`
	RateLimit    DispatchRateLimit `yaml:"rate_limit"`
}

// DispatchRateLimit caps notification volume inside a sliding window
type DispatchRateLimit struct {
	MaxSends int           `yaml:"max_sends"`
	Window   time.Duration `yaml:"window"`
}

// SchedulerConfig represents cycle scheduler configuration
type SchedulerConfig struct {
	Strategy           string              `yaml:"strategy"` // fixed, market_aligned
	Interval           time.Duration       `yaml:"interval"`
	AfterHoursInterval time.Duration       `yaml:"afterhours_interval"`
	CheckDelay         time.Duration       `yaml:"check_delay"`
	Market             MarketSessionConfig `yaml:"market"`
}

// MarketSessionConfig represents the market session window
type MarketSessionConfig struct {
	Open     string `yaml:"open"`  // "09:30"
	Close    string `yaml:"close"` // "16:00"
	Timezone string `yaml:"timezone"`
}

// DetectorConfig represents the upstream detector client configuration
type DetectorConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// DeliveryConfig selects and configures the delivery collaborator
type DeliveryConfig struct {
	Channel string          `yaml:"channel"` // webhook, redis_stream, log
	Webhook WebhookDelivery `yaml:"webhook"`
	Stream  StreamDelivery  `yaml:"stream"`
}

// WebhookDelivery represents webhook delivery configuration
type WebhookDelivery struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StreamDelivery represents redis stream delivery configuration
type StreamDelivery struct {
	Name   string `yaml:"name"`
	MaxLen int64  `yaml:"max_len"`
}

// AnalyticsConfig represents aggregator configuration
type AnalyticsConfig struct {
	RebuildCron   string        `yaml:"rebuild_cron"`
	CleanupCron   string        `yaml:"cleanup_cron"`
	RetentionDays int           `yaml:"retention_days"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// AlertingConfig represents operational alerting configuration
type AlertingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RateLimitConfig represents API request rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	Filename string `yaml:"filename"`
}

// Load loads configuration from a YAML file. ${VAR} references inside
// the file are expanded from the environment before parsing.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyEnvOverrides overlays prefixed environment variables onto the
// loaded configuration. Only connection endpoints and secrets are
// overridable; pipeline semantics stay in the file.
func (c *Config) ApplyEnvOverrides(em *EnvManager) {
	c.Database.Host = em.GetString("DB_HOST", c.Database.Host)
	c.Database.Port = em.GetInt("DB_PORT", c.Database.Port)
	c.Database.User = em.GetString("DB_USER", c.Database.User)
	c.Database.Password = em.GetEncryptedString("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = em.GetString("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = em.GetString("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = em.GetString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = em.GetEncryptedString("REDIS_PASSWORD", c.Redis.Password)

	c.Detector.BaseURL = em.GetString("DETECTOR_URL", c.Detector.BaseURL)
	c.Delivery.Webhook.URL = em.GetString("DELIVERY_WEBHOOK_URL", c.Delivery.Webhook.URL)
	c.Alerting.WebhookURL = em.GetString("ALERT_WEBHOOK_URL", c.Alerting.WebhookURL)

	c.Server.Host = em.GetString("SERVER_HOST", c.Server.Host)
	c.Server.Port = em.GetInt("SERVER_PORT", c.Server.Port)

	if level := em.GetString("LOG_LEVEL", ""); level != "" {
		c.Logging.Level = level
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sigflow"
	}
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8082
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "migrations"
	}
	if len(c.Watchlist.Tickers) == 0 {
		c.Watchlist.Tickers = []string{"SPY", "QQQ", "AAPL", "TSLA", "NVDA"}
	}
	if len(c.Watchlist.Timeframes) == 0 {
		c.Watchlist.Timeframes = []string{"1h", "4h", "1d"}
	}
	if c.Priority.ConfigName == "" {
		c.Priority.ConfigName = "default"
	}
	if c.Priority.MinLevel == "" {
		c.Priority.MinLevel = string(signal.LevelMedium)
	}
	if c.Priority.Thresholds == (ThresholdsConfig{}) {
		c.Priority.Thresholds = ThresholdsConfig{Critical: 90, High: 70, Medium: 50, Low: 30}
	}
	if len(c.Priority.VIPTickers) == 0 {
		c.Priority.VIPTickers = []string{"SPY", "QQQ", "AAPL", "TSLA", "NVDA"}
	}
	if len(c.Priority.VIPTimeframes) == 0 {
		c.Priority.VIPTimeframes = []string{"1d", "4h"}
	}
	if c.Dispatch.RateLimit.MaxSends == 0 {
		c.Dispatch.RateLimit.MaxSends = 10
	}
	if c.Dispatch.RateLimit.Window == 0 {
		c.Dispatch.RateLimit.Window = time.Hour
	}
	if c.Scheduler.Strategy == "" {
		c.Scheduler.Strategy = "market_aligned"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 15 * time.Minute
	}
	if c.Scheduler.AfterHoursInterval == 0 {
		c.Scheduler.AfterHoursInterval = 30 * time.Minute
	}
	if c.Scheduler.CheckDelay == 0 {
		c.Scheduler.CheckDelay = 2 * time.Minute
	}
	if c.Scheduler.Market.Open == "" {
		c.Scheduler.Market.Open = "09:30"
	}
	if c.Scheduler.Market.Close == "" {
		c.Scheduler.Market.Close = "16:00"
	}
	if c.Scheduler.Market.Timezone == "" {
		c.Scheduler.Market.Timezone = "America/New_York"
	}
	if c.Detector.Timeout == 0 {
		c.Detector.Timeout = 10 * time.Second
	}
	if c.Detector.MaxRetries == 0 {
		c.Detector.MaxRetries = 3
	}
	if c.Detector.InitialWait == 0 {
		c.Detector.InitialWait = 500 * time.Millisecond
	}
	if c.Detector.MaxWait == 0 {
		c.Detector.MaxWait = 5 * time.Second
	}
	if c.Delivery.Channel == "" {
		c.Delivery.Channel = "log"
	}
	if c.Delivery.Webhook.Timeout == 0 {
		c.Delivery.Webhook.Timeout = 10 * time.Second
	}
	if c.Delivery.Stream.Name == "" {
		c.Delivery.Stream.Name = "sigflow:notifications"
	}
	if c.Delivery.Stream.MaxLen == 0 {
		c.Delivery.Stream.MaxLen = 10000
	}
	if c.Analytics.RebuildCron == "" {
		c.Analytics.RebuildCron = "10 0 * * *"
	}
	if c.Analytics.CleanupCron == "" {
		c.Analytics.CleanupCron = "30 3 * * *"
	}
	if c.Analytics.RetentionDays == 0 {
		c.Analytics.RetentionDays = 30
	}
	if c.Analytics.CacheTTL == 0 {
		c.Analytics.CacheTTL = time.Minute
	}
	if c.Monitoring.PrometheusPath == "" {
		c.Monitoring.PrometheusPath = "/metrics"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	t := c.Priority.Thresholds
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low && t.Low > 0) {
		return fmt.Errorf("priority thresholds must be strictly descending positive integers, got %d/%d/%d/%d",
			t.Critical, t.High, t.Medium, t.Low)
	}
	if _, err := signal.ParseLevel(c.Priority.MinLevel); err != nil {
		return fmt.Errorf("priority.min_level: %w", err)
	}
	if c.Dispatch.RateLimit.MaxSends < 1 {
		return fmt.Errorf("dispatch.rate_limit.max_sends must be positive")
	}
	if c.Dispatch.RateLimit.Window <= 0 {
		return fmt.Errorf("dispatch.rate_limit.window must be positive")
	}
	switch c.Scheduler.Strategy {
	case "fixed", "market_aligned":
	default:
		return fmt.Errorf("scheduler.strategy must be fixed or market_aligned, got %q", c.Scheduler.Strategy)
	}
	if _, err := time.Parse("15:04", c.Scheduler.Market.Open); err != nil {
		return fmt.Errorf("scheduler.market.open: %w", err)
	}
	if _, err := time.Parse("15:04", c.Scheduler.Market.Close); err != nil {
		return fmt.Errorf("scheduler.market.close: %w", err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Market.Timezone); err != nil {
		return fmt.Errorf("scheduler.market.timezone: %w", err)
	}
	for _, tf := range c.Watchlist.Timeframes {
		if _, ok := signal.TimeframeDuration(tf); !ok {
			return fmt.Errorf("watchlist.timeframes: unknown timeframe %q", tf)
		}
	}
	switch c.Delivery.Channel {
	case "webhook", "redis_stream", "log":
	default:
		return fmt.Errorf("delivery.channel must be webhook, redis_stream or log, got %q", c.Delivery.Channel)
	}
	if c.Delivery.Channel == "webhook" && c.Delivery.Webhook.URL == "" {
		return fmt.Errorf("delivery.webhook.url is required for the webhook channel")
	}
	if c.Delivery.Channel == "redis_stream" && !c.Redis.Enabled {
		return fmt.Errorf("delivery.channel redis_stream requires redis.enabled")
	}
	if c.Analytics.RetentionDays < 1 {
		return fmt.Errorf("analytics.retention_days must be positive")
	}
	return nil
}

// ParsedMinLevel returns the parsed minimum dispatch level.
func (p PriorityConfig) ParsedMinLevel() signal.Level {
	lv, err := signal.ParseLevel(p.MinLevel)
	if err != nil {
		return signal.LevelMedium
	}
	return lv
}

// Environment reports the deployment environment, normalized.
func (c *Config) Environment() string {
	return strings.ToLower(c.App.Env)
}
