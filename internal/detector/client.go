package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sigflow/internal/config"
	"sigflow/internal/logger"
	"sigflow/internal/signal"
)

// Client fetches raw signal records from the external detection API.
// The detector performs the actual technical analysis; this client
// only retrieves and normalizes its output.
type Client struct {
	baseURL string
	client  *http.Client
	retry   *RetryConfig
	log     logger.Logger
}

// NewClient creates a detector client from configuration.
func NewClient(cfg config.DetectorConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialWait > 0 {
		retry.InitialWait = cfg.InitialWait
	}
	if cfg.MaxWait > 0 {
		retry.MaxWait = cfg.MaxWait
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		log:     log,
	}
}

type signalRecord struct {
	Ticker      string    `json:"ticker"`
	Timeframe   string    `json:"timeframe"`
	SignalType  string    `json:"signal_type"`
	DetectedAt  time.Time `json:"detected_at"`
	Strength    string    `json:"strength"`
	System      string    `json:"system"`
	Description string    `json:"description"`
}

type signalsResponse struct {
	Signals []signalRecord `json:"signals"`
}

// Fetch retrieves the detector's current signals for a monitored pair,
// retrying transient failures with bounded backoff. Records missing
// required fields are dropped with a warning rather than failing the
// batch.
func (c *Client) Fetch(ctx context.Context, ticker, timeframe string) ([]signal.Signal, error) {
	return RetryWithResult(ctx, func(ctx context.Context) ([]signal.Signal, error) {
		return c.fetchOnce(ctx, ticker, timeframe)
	}, c.retry)
}

func (c *Client) fetchOnce(ctx context.Context, ticker, timeframe string) ([]signal.Signal, error) {
	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("timeframe", timeframe)
	params.Set("period", periodFor(timeframe))

	endpoint := fmt.Sprintf("%s/api/v1/signals?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build detector request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Message: resp.Status}
	}

	var out signalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	signals := make([]signal.Signal, 0, len(out.Signals))
	for _, rec := range out.Signals {
		s := signal.Signal{
			Ticker:      rec.Ticker,
			Timeframe:   rec.Timeframe,
			SignalType:  rec.SignalType,
			DetectedAt:  rec.DetectedAt,
			Strength:    signal.ParseStrength(rec.Strength),
			System:      rec.System,
			Description: rec.Description,
		}
		// records inherit the requested pair when the detector omits it
		if s.Ticker == "" {
			s.Ticker = ticker
		}
		if s.Timeframe == "" {
			s.Timeframe = timeframe
		}

		if err := s.Validate(); err != nil {
			c.log.Warn("dropping invalid detector record",
				"ticker", ticker, "timeframe", timeframe, "error", err)
			continue
		}
		signals = append(signals, s)
	}
	return signals, nil
}

// periodFor maps a timeframe onto the lookback window the detector
// needs for useful coverage.
func periodFor(timeframe string) string {
	switch timeframe {
	case "1d":
		return "1y"
	case "3h", "6h":
		return "3mo"
	case "1h":
		return "1mo"
	case "15m", "30m":
		return "1wk"
	default:
		return "1mo"
	}
}
