package testutils

import (
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigflow/internal/signal"
)

func TestGeneratorProducesValidSignals(t *testing.T) {
	gen := NewGenerator(42)
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		sig := gen.Signal(base)
		require.NoError(t, sig.Validate())
		_, known := signal.TimeframeDuration(sig.Timeframe)
		assert.True(t, known, "generated unknown timeframe %q", sig.Timeframe)
		assert.False(t, sig.DetectedAt.After(base))
	}
}

func TestGeneratorSignalsAreDistinct(t *testing.T) {
	gen := NewGenerator(7)
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	signals := gen.Signals(100, base)
	require.Len(t, signals, 100)

	seen := make(map[signal.Identity]struct{}, len(signals))
	for _, s := range signals {
		_, dup := seen[s.Identity()]
		assert.False(t, dup, "duplicate identity %s", s.Identity())
		seen[s.Identity()] = struct{}{}
	}
}

func TestGeneratorDeterministicWithSeed(t *testing.T) {
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	a := NewGenerator(99).Signals(10, base)
	b := NewGenerator(99).Signals(10, base)
	assert.Equal(t, a, b)
}

func TestGeneratorConfigurationIsValid(t *testing.T) {
	gen := NewGenerator(3)
	for i := 0; i < 20; i++ {
		cfg := gen.Configuration("generated")
		require.NoError(t, cfg.Validate())
	}
}

func TestHTTPTestHelper(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	h := NewHTTPTestHelper(t, router)
	resp := h.GET("/ping", nil)
	resp.AssertStatus(http.StatusOK).AssertContains("pong")

	var body struct {
		Message string `json:"message"`
	}
	resp.GetJSON(&body)
	assert.Equal(t, "pong", body.Message)
}

func TestWaitForCondition(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(true)
	}()
	WaitForCondition(t, flag.Load, time.Second, "flag never set")
}

func TestSetEnvRestores(t *testing.T) {
	const key = "SIGFLOW_TESTUTILS_PROBE"

	t.Run("inner", func(t *testing.T) {
		SetEnv(t, key, "set")
		v, ok := os.LookupEnv(key)
		require.True(t, ok)
		assert.Equal(t, "set", v)
	})

	_, ok := os.LookupEnv(key)
	assert.False(t, ok, "expected %s to be unset after cleanup", key)
}
