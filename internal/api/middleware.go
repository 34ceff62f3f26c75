package api

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"sigflow/internal/config"
	apperrors "sigflow/internal/errors"
	"sigflow/internal/monitor"
)

// corsMiddleware adds CORS headers from the configured policy
func corsMiddleware(corsConfig config.CORSConfig) gin.HandlerFunc {
	origins := "*"
	if len(corsConfig.AllowedOrigins) > 0 {
		origins = strings.Join(corsConfig.AllowedOrigins, ", ")
	}
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(corsConfig.AllowedMethods) > 0 {
		methods = strings.Join(corsConfig.AllowedMethods, ", ")
	}
	headers := "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization"
	if len(corsConfig.AllowedHeaders) > 0 {
		headers = strings.Join(corsConfig.AllowedHeaders, ", ")
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if corsConfig.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// rateLimitMiddleware applies a token bucket per client IP. Entries
// for idle clients are evicted in the background.
func rateLimitMiddleware(rateLimitConfig config.RateLimitConfig) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var mu sync.Mutex
	clients := make(map[string]*client)
	perSecond := rate.Limit(float64(rateLimitConfig.RequestsPerMinute) / 60.0)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for ip, cl := range clients {
				if time.Since(cl.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(perSecond, rateLimitConfig.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			appErr := apperrors.NewAppError(apperrors.ErrCodeRateLimit, "Too many requests", nil)
			c.AbortWithStatusJSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, c.Request.URL.Path))
			return
		}

		c.Next()
	}
}

// metricsMiddleware records request counts and response times
func metricsMiddleware(mc *monitor.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		mc.RecordAPIRequest(endpoint, c.Request.Method, strconv.Itoa(c.Writer.Status()))
		mc.RecordAPIResponseTime(endpoint, c.Request.Method, time.Since(start))
	}
}
