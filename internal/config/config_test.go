package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sigflow/internal/signal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")

	path := writeConfig(t, `
app:
  name: "sigflow"
  env: "test"

server:
  port: 9999

database:
  host: "db.internal"
  port: 5432
  user: "sigflow"
  password: "${TEST_DB_PASSWORD}"
  dbname: "sigflow"

dispatch:
  only_critical: true
  rate_limit:
    max_sends: 5
    window: 30m

delivery:
  channel: "log"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Env != "test" {
		t.Errorf("Expected env test, got %s", cfg.App.Env)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("Expected ${VAR} expansion, got %q", cfg.Database.Password)
	}
	if !cfg.Dispatch.OnlyCritical {
		t.Error("Expected only_critical true")
	}
	if cfg.Dispatch.RateLimit.MaxSends != 5 {
		t.Errorf("Expected max_sends 5, got %d", cfg.Dispatch.RateLimit.MaxSends)
	}
	if cfg.Dispatch.RateLimit.Window != 30*time.Minute {
		t.Errorf("Expected window 30m, got %s", cfg.Dispatch.RateLimit.Window)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: sigflow\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8082 {
		t.Errorf("Expected default port 8082, got %d", cfg.Server.Port)
	}
	if cfg.Database.MigrationsPath != "migrations" {
		t.Errorf("Expected default migrations path, got %s", cfg.Database.MigrationsPath)
	}
	if len(cfg.Watchlist.Tickers) == 0 || len(cfg.Watchlist.Timeframes) == 0 {
		t.Error("Expected default watchlist")
	}

	th := cfg.Priority.Thresholds
	if th.Critical != 90 || th.High != 70 || th.Medium != 50 || th.Low != 30 {
		t.Errorf("Expected default thresholds 90/70/50/30, got %d/%d/%d/%d",
			th.Critical, th.High, th.Medium, th.Low)
	}
	if cfg.Priority.MinLevel != string(signal.LevelMedium) {
		t.Errorf("Expected default min_level MEDIUM, got %s", cfg.Priority.MinLevel)
	}

	if cfg.Dispatch.RateLimit.MaxSends != 10 || cfg.Dispatch.RateLimit.Window != time.Hour {
		t.Errorf("Expected default rate limit 10/1h, got %d/%s",
			cfg.Dispatch.RateLimit.MaxSends, cfg.Dispatch.RateLimit.Window)
	}
	if cfg.Scheduler.Strategy != "market_aligned" {
		t.Errorf("Expected default strategy market_aligned, got %s", cfg.Scheduler.Strategy)
	}
	if cfg.Delivery.Channel != "log" {
		t.Errorf("Expected default delivery channel log, got %s", cfg.Delivery.Channel)
	}
	if cfg.Analytics.RebuildCron != "10 0 * * *" {
		t.Errorf("Expected default rebuild cron, got %s", cfg.Analytics.RebuildCron)
	}
	if cfg.Analytics.RetentionDays != 30 {
		t.Errorf("Expected default retention 30, got %d", cfg.Analytics.RetentionDays)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		var c Config
		c.applyDefaults()
		return &c
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"thresholds not descending", func(c *Config) { c.Priority.Thresholds.High = 95 }},
		{"low threshold zero", func(c *Config) { c.Priority.Thresholds.Low = 0 }},
		{"unknown min level", func(c *Config) { c.Priority.MinLevel = "URGENT" }},
		{"zero max sends", func(c *Config) { c.Dispatch.RateLimit.MaxSends = 0 }},
		{"negative window", func(c *Config) { c.Dispatch.RateLimit.Window = -time.Minute }},
		{"unknown strategy", func(c *Config) { c.Scheduler.Strategy = "hourly" }},
		{"bad market open", func(c *Config) { c.Scheduler.Market.Open = "9:30am" }},
		{"bad timezone", func(c *Config) { c.Scheduler.Market.Timezone = "Mars/Olympus" }},
		{"unknown timeframe", func(c *Config) { c.Watchlist.Timeframes = []string{"1h", "9x"} }},
		{"unknown delivery channel", func(c *Config) { c.Delivery.Channel = "email" }},
		{"webhook channel without url", func(c *Config) { c.Delivery.Channel = "webhook" }},
		{"stream channel without redis", func(c *Config) { c.Delivery.Channel = "redis_stream" }},
		{"negative retention", func(c *Config) { c.Analytics.RetentionDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SIGFLOW_DB_HOST", "db.override")
	t.Setenv("SIGFLOW_DB_PORT", "6432")
	t.Setenv("SIGFLOW_REDIS_ADDR", "redis.override:6379")
	t.Setenv("SIGFLOW_DETECTOR_URL", "http://detector.override:9090")
	t.Setenv("SIGFLOW_LOG_LEVEL", "debug")

	var cfg Config
	cfg.applyDefaults()
	cfg.Database.Host = "localhost"
	cfg.ApplyEnvOverrides(NewEnvManager("", ""))

	if cfg.Database.Host != "db.override" {
		t.Errorf("Expected DB host override, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 6432 {
		t.Errorf("Expected DB port override, got %d", cfg.Database.Port)
	}
	if cfg.Redis.Addr != "redis.override:6379" {
		t.Errorf("Expected redis addr override, got %s", cfg.Redis.Addr)
	}
	if cfg.Detector.BaseURL != "http://detector.override:9090" {
		t.Errorf("Expected detector url override, got %s", cfg.Detector.BaseURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level override, got %s", cfg.Logging.Level)
	}
}

func TestEnvManagerEncryptedRoundTrip(t *testing.T) {
	em := NewEnvManager("test-key", "SIGFLOW_TEST_")

	if err := em.SetEncryptedString("SECRET", "hunter2"); err != nil {
		t.Fatalf("SetEncryptedString failed: %v", err)
	}
	defer os.Unsetenv("SIGFLOW_TEST_SECRET")

	if raw := os.Getenv("SIGFLOW_TEST_SECRET"); raw == "hunter2" {
		t.Error("Secret should not be stored in plaintext")
	}

	if got := em.GetEncryptedString("SECRET", ""); got != "hunter2" {
		t.Errorf("Expected round-tripped secret, got %q", got)
	}
}

func TestEnvManagerPlainPassthrough(t *testing.T) {
	t.Setenv("SIGFLOW_TEST_PLAIN", "not-encrypted")

	em := NewEnvManager("test-key", "SIGFLOW_TEST_")
	if got := em.GetEncryptedString("PLAIN", ""); got != "not-encrypted" {
		t.Errorf("Expected plain passthrough, got %q", got)
	}
}

func TestParsedMinLevel(t *testing.T) {
	p := PriorityConfig{MinLevel: "HIGH"}
	if p.ParsedMinLevel() != signal.LevelHigh {
		t.Errorf("Expected HIGH, got %s", p.ParsedMinLevel())
	}

	p = PriorityConfig{MinLevel: "nonsense"}
	if p.ParsedMinLevel() != signal.LevelMedium {
		t.Errorf("Expected MEDIUM fallback, got %s", p.ParsedMinLevel())
	}
}

func TestEnvironment(t *testing.T) {
	cfg := &Config{App: AppConfig{Env: "Production"}}
	if cfg.Environment() != "production" {
		t.Errorf("Expected normalized environment, got %s", cfg.Environment())
	}
}
