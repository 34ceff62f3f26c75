package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigflow/internal/priority"
	"sigflow/internal/scoring"
	"sigflow/internal/signal"
)

// HTTPTestHelper drives a gin router through httptest
type HTTPTestHelper struct {
	Router *gin.Engine
	t      *testing.T
}

// NewHTTPTestHelper creates a test helper around a router. A nil
// router gets a fresh bare engine.
func NewHTTPTestHelper(t *testing.T, router *gin.Engine) *HTTPTestHelper {
	gin.SetMode(gin.TestMode)
	if router == nil {
		router = gin.New()
	}
	return &HTTPTestHelper{Router: router, t: t}
}

// GET sends a GET request
func (h *HTTPTestHelper) GET(path string, headers map[string]string) *HTTPResponse {
	return h.Request(http.MethodGet, path, nil, headers)
}

// POST sends a POST request with a JSON body
func (h *HTTPTestHelper) POST(path string, body interface{}, headers map[string]string) *HTTPResponse {
	return h.Request(http.MethodPost, path, body, headers)
}

// PUT sends a PUT request with a JSON body
func (h *HTTPTestHelper) PUT(path string, body interface{}, headers map[string]string) *HTTPResponse {
	return h.Request(http.MethodPut, path, body, headers)
}

// DELETE sends a DELETE request
func (h *HTTPTestHelper) DELETE(path string, headers map[string]string) *HTTPResponse {
	return h.Request(http.MethodDelete, path, nil, headers)
}

// Request sends a request and records the response
func (h *HTTPTestHelper) Request(method, path string, body interface{}, headers map[string]string) *HTTPResponse {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(h.t, err)
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	h.Router.ServeHTTP(w, req)

	return &HTTPResponse{
		StatusCode: w.Code,
		Body:       w.Body.Bytes(),
		Headers:    w.Header(),
		t:          h.t,
	}
}

// HTTPResponse represents a recorded response
type HTTPResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	t          *testing.T
}

// AssertStatus asserts the response status code
func (r *HTTPResponse) AssertStatus(expected int) *HTTPResponse {
	assert.Equal(r.t, expected, r.StatusCode, "unexpected status, body: %s", r.Body)
	return r
}

// AssertContains asserts the body contains a substring
func (r *HTTPResponse) AssertContains(substring string) *HTTPResponse {
	assert.Contains(r.t, string(r.Body), substring)
	return r
}

// GetJSON decodes the body into target
func (r *HTTPResponse) GetJSON(target interface{}) {
	require.NoError(r.t, json.Unmarshal(r.Body, target), "body: %s", r.Body)
}

// GetString returns the body as a string
func (r *HTTPResponse) GetString() string {
	return string(r.Body)
}

var (
	tickers = []string{"AAPL", "MSFT", "NVDA", "TSLA", "SPY", "QQQ", "AMD", "META", "AMZN", "GOOG"}

	strengths = []signal.Strength{
		signal.StrengthVeryStrong,
		signal.StrengthStrong,
		signal.StrengthModerate,
		signal.StrengthMedium,
		signal.StrengthWeak,
	}

	systems = []string{
		"Wave Trend",
		"RSI3M3+",
		"Divergence Detection",
		"Fast Money",
		"Trend Exhaustion",
		"Zero Line",
		"Momentum Tracker",
	}

	signalTypes = []string{
		"WT_BUY",
		"WT_SELL",
		"GOLD_BUY",
		"ZERO_LINE_REJECT",
		"BULLISH_DIVERGENCE",
		"BEARISH_DIVERGENCE",
		"RSI3M3_ENTRY",
		"TREND_BREAK",
		"GOLDEN_CROSS",
		"REVERSAL",
	}

	timeframes = []string{"15m", "30m", "1h", "3h", "4h", "6h", "1d"}
)

// Generator produces randomized domain values for tests. A fixed seed
// makes a test's data reproducible.
type Generator struct {
	rand *rand.Rand
}

// NewGenerator creates a generator. Seed zero derives the seed from
// the clock.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rand: rand.New(rand.NewSource(seed))}
}

// Ticker returns a random ticker symbol
func (g *Generator) Ticker() string {
	return tickers[g.rand.Intn(len(tickers))]
}

// Timeframe returns a random monitored timeframe token
func (g *Generator) Timeframe() string {
	return timeframes[g.rand.Intn(len(timeframes))]
}

// Strength returns a random signal strength
func (g *Generator) Strength() signal.Strength {
	return strengths[g.rand.Intn(len(strengths))]
}

// System returns a random detection system name
func (g *Generator) System() string {
	return systems[g.rand.Intn(len(systems))]
}

// SignalType returns a random signal type token
func (g *Generator) SignalType() string {
	return signalTypes[g.rand.Intn(len(signalTypes))]
}

// Signal returns a random valid signal detected near base. Detection
// times land within the preceding hour, truncated to the second so
// identities survive a database round trip.
func (g *Generator) Signal(base time.Time) signal.Signal {
	detected := base.Add(-time.Duration(g.rand.Intn(3600)) * time.Second).UTC().Truncate(time.Second)
	return signal.Signal{
		Ticker:     g.Ticker(),
		Timeframe:  g.Timeframe(),
		SignalType: g.SignalType(),
		DetectedAt: detected,
		Strength:   g.Strength(),
		System:     g.System(),
	}
}

// Signals returns n random signals with distinct identities.
func (g *Generator) Signals(n int, base time.Time) []signal.Signal {
	out := make([]signal.Signal, 0, n)
	seen := make(map[signal.Identity]struct{}, n)
	for len(out) < n {
		s := g.Signal(base)
		if _, dup := seen[s.Identity()]; dup {
			continue
		}
		seen[s.Identity()] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Configuration returns a valid random priority configuration
func (g *Generator) Configuration(name string) *priority.Configuration {
	low := 20 + g.rand.Intn(20)
	medium := low + 10 + g.rand.Intn(10)
	high := medium + 10 + g.rand.Intn(10)
	critical := high + 10 + g.rand.Intn(10)
	return &priority.Configuration{
		Name: name,
		Thresholds: scoring.Thresholds{
			Critical: critical,
			High:     high,
			Medium:   medium,
			Low:      low,
		},
		VIPTickers:    []string{g.Ticker()},
		VIPTimeframes: []string{g.Timeframe()},
		MinLevel:      signal.LevelLow,
	}
}

// TimeoutContext returns a context that expires after timeout
func TimeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// WaitForCondition polls until the condition holds or the timeout
// elapses, failing the test on timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for condition: %s", message)
}

// Eventually is WaitForCondition under its conventional name
func Eventually(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()
	WaitForCondition(t, condition, timeout, message)
}

// SetEnv sets an environment variable and restores the previous value
// when the test finishes.
func SetEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}
