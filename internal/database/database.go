package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	config *Config
	stats  *PoolStats
	stopCh chan struct{}
	mu     sync.RWMutex

	// Monitoring callback
	monitorCallback func(*PoolStats)
}

// Config represents database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpen         int
	MaxIdle         int
	Timeout         time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PoolStats represents connection pool statistics
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxLifetimeClosed  int64
	LastUpdated        time.Time
}

// NewConnection creates a new database connection
func NewConnection(cfg *Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 25
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 1 * time.Hour
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 15 * time.Minute
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with retry logic
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var pingErr error
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}

		log.Printf("Database ping attempt %d/%d failed: %v", i+1, maxRetries, pingErr)
		if i < maxRetries-1 {
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}

	if pingErr != nil {
		return nil, fmt.Errorf("failed to ping database %q at %s:%d after %d attempts: %w",
			cfg.DBName, cfg.Host, cfg.Port, maxRetries, pingErr)
	}

	log.Printf("Database connection established with pool config: max_open=%d, max_idle=%d, max_lifetime=%v, max_idle_time=%v",
		cfg.MaxOpen, cfg.MaxIdle, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)

	database := &DB{
		DB:     db,
		config: cfg,
		stats:  &PoolStats{},
		stopCh: make(chan struct{}),
	}

	// Start stats monitoring
	go database.monitorPoolStats()

	return database, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	close(db.stopCh)
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// GetPoolStats returns current connection pool statistics
func (db *DB) GetPoolStats() *PoolStats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := *db.stats
	return &stats
}

// GetConfig returns the database configuration
func (db *DB) GetConfig() *Config {
	return db.config
}

// SetMonitorCallback sets a callback function for monitoring
func (db *DB) SetMonitorCallback(callback func(*PoolStats)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.monitorCallback = callback
}

// monitorPoolStats periodically updates connection pool statistics
func (db *DB) monitorPoolStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-db.stopCh:
			return
		case <-ticker.C:
			db.updatePoolStats()
		}
	}
}

func (db *DB) updatePoolStats() {
	stats := db.DB.Stats()

	db.mu.Lock()
	db.stats.MaxOpenConnections = stats.MaxOpenConnections
	db.stats.OpenConnections = stats.OpenConnections
	db.stats.InUse = stats.InUse
	db.stats.Idle = stats.Idle
	db.stats.WaitCount = stats.WaitCount
	db.stats.WaitDuration = stats.WaitDuration
	db.stats.MaxIdleClosed = stats.MaxIdleClosed
	db.stats.MaxLifetimeClosed = stats.MaxLifetimeClosed
	db.stats.LastUpdated = time.Now()

	if db.monitorCallback != nil {
		statsCopy := *db.stats
		db.mu.Unlock()
		db.monitorCallback(&statsCopy)
	} else {
		db.mu.Unlock()
	}

	if stats.WaitCount > 0 {
		log.Printf("Database connection pool under pressure: wait_count=%d, wait_duration=%v, in_use=%d, idle=%d",
			stats.WaitCount, stats.WaitDuration, stats.InUse, stats.Idle)
	}
}

// IsHealthy checks if the database connection pool is healthy
func (db *DB) IsHealthy() bool {
	stats := db.GetPoolStats()

	if stats.InUse > stats.MaxOpenConnections*80/100 {
		return false
	}
	if stats.WaitCount > 100 {
		return false
	}
	return true
}

// GetHealthStatus returns detailed health status
func (db *DB) GetHealthStatus() map[string]interface{} {
	stats := db.GetPoolStats()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingResult := true
	if err := db.PingContext(ctx); err != nil {
		pingResult = false
		log.Printf("Database health check ping failed: %v", err)
	}

	return map[string]interface{}{
		"healthy":              db.IsHealthy() && pingResult,
		"ping_successful":      pingResult,
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
		"last_updated":         stats.LastUpdated,
	}
}
