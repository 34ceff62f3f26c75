package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sigflow/internal/logger"
)

// AlertLevel represents alert severity
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelError    AlertLevel = "error"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert represents an operational alert
type Alert struct {
	ID        string                 `json:"id"`
	Level     AlertLevel             `json:"level"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Config represents alert manager configuration
type Config struct {
	QueueSize     int
	Timeout       time.Duration
	RetryCount    int
	RetryInterval time.Duration
	Throttle      time.Duration
}

var (
	alertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_sent_total",
		Help: "Total number of alerts delivered",
	}, []string{"channel", "level"})

	alertsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_failed_total",
		Help: "Total number of alerts that exhausted delivery retries",
	}, []string{"channel"})

	alertsThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_throttled_total",
		Help: "Total number of alerts suppressed by the throttle window",
	})

	alertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_dropped_total",
		Help: "Total number of alerts dropped because the queue was full",
	})
)

// Manager fans alerts out to its registered channels from a single
// worker goroutine, so alerting never blocks the dispatch path.
// Repeats of the same title and level inside the throttle window are
// suppressed.
type Manager struct {
	config   *Config
	channels map[string]AlertChannel
	log      logger.Logger

	alertCh chan *Alert
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	lastFired map[string]time.Time
	isRunning bool
}

// NewManager creates an alert manager
func NewManager(config *Config, log logger.Logger) *Manager {
	if config == nil {
		config = &Config{}
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryCount < 0 {
		config.RetryCount = 0
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 5 * time.Second
	}
	if config.Throttle <= 0 {
		config.Throttle = 5 * time.Minute
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Manager{
		config:    config,
		channels:  make(map[string]AlertChannel),
		log:       log,
		alertCh:   make(chan *Alert, config.QueueSize),
		lastFired: make(map[string]time.Time),
	}
}

// RegisterChannel adds an alert channel
func (m *Manager) RegisterChannel(channel AlertChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel.GetName()] = channel
}

// Start launches the delivery worker
func (m *Manager) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.worker(stop)
}

// Stop halts the delivery worker. Queued alerts that have not been
// picked up yet are discarded.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// Send enqueues an alert for delivery. It never blocks: when the queue
// is full the alert is dropped and an error returned.
func (m *Manager) Send(ctx context.Context, level AlertLevel, title, message, source string, metadata map[string]interface{}) error {
	key := string(level) + ":" + title

	m.mu.Lock()
	if last, ok := m.lastFired[key]; ok && time.Since(last) < m.config.Throttle {
		m.mu.Unlock()
		alertsThrottled.Inc()
		return nil
	}
	m.lastFired[key] = time.Now()
	m.mu.Unlock()

	alert := &Alert{
		ID:        uuid.New().String(),
		Level:     level,
		Title:     title,
		Message:   message,
		Source:    source,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	select {
	case m.alertCh <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		alertsDropped.Inc()
		return fmt.Errorf("alert queue is full")
	}
}

// Info sends an informational alert
func (m *Manager) Info(ctx context.Context, title, message string, metadata map[string]interface{}) {
	m.enqueue(ctx, AlertLevelInfo, title, message, metadata)
}

// Warning sends a warning alert
func (m *Manager) Warning(ctx context.Context, title, message string, metadata map[string]interface{}) {
	m.enqueue(ctx, AlertLevelWarning, title, message, metadata)
}

// Error sends an error alert
func (m *Manager) Error(ctx context.Context, title, message string, metadata map[string]interface{}) {
	m.enqueue(ctx, AlertLevelError, title, message, metadata)
}

// Critical sends a critical alert
func (m *Manager) Critical(ctx context.Context, title, message string, metadata map[string]interface{}) {
	m.enqueue(ctx, AlertLevelCritical, title, message, metadata)
}

func (m *Manager) enqueue(ctx context.Context, level AlertLevel, title, message string, metadata map[string]interface{}) {
	if err := m.Send(ctx, level, title, message, "pipeline", metadata); err != nil {
		m.log.Warn("failed to enqueue alert", "title", title, "error", err)
	}
}

func (m *Manager) worker(stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stop:
			return
		case alert := <-m.alertCh:
			m.process(alert, stop)
		}
	}
}

// process delivers one alert to every enabled channel, retrying each
// channel up to the configured count before giving up on it.
func (m *Manager) process(alert *Alert, stop <-chan struct{}) {
	m.mu.Lock()
	channels := make([]AlertChannel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, channel := range channels {
		if !channel.IsEnabled() {
			continue
		}

		for attempt := 0; attempt <= m.config.RetryCount; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
			err := channel.Send(ctx, alert)
			cancel()

			if err == nil {
				alertsSent.WithLabelValues(channel.GetName(), string(alert.Level)).Inc()
				break
			}

			if attempt == m.config.RetryCount {
				alertsFailed.WithLabelValues(channel.GetName()).Inc()
				m.log.Error("failed to deliver alert",
					"channel", channel.GetName(),
					"alert_id", alert.ID,
					"title", alert.Title,
					"error", err)
				break
			}

			select {
			case <-stop:
				return
			case <-time.After(m.config.RetryInterval):
			}
		}
	}
}
