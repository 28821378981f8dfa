package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanguardia360/performance-engine/internal/monitoring"
)

func newFallbackLimiter(perMinute, burstMultiplier int) *RateLimiter {
	return NewRateLimiter(
		NewRedisClient("", "", 0),
		Config{RequestsPerMinute: perMinute, BurstMultiplier: burstMultiplier},
		monitoring.NewMetrics(),
	)
}

func TestAllowClientFallback(t *testing.T) {
	limiter := newFallbackLimiter(60, 1)
	ctx := context.Background()

	result, err := limiter.AllowClient(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 60, result.Limit)
}

func TestAllowClientFallbackExhaustsBurst(t *testing.T) {
	// Burst floor is 5; the bucket refills at 1/min so the sixth
	// immediate request must be rejected.
	limiter := newFallbackLimiter(1, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.AllowClient(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
	}

	result, err := limiter.AllowClient(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)
}

func TestAllowClientIsolatesClients(t *testing.T) {
	limiter := newFallbackLimiter(1, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.AllowClient(ctx, "10.0.0.3")
		require.NoError(t, err)
	}
	blocked, err := limiter.AllowClient(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	fresh, err := limiter.AllowClient(ctx, "10.0.0.4")
	require.NoError(t, err)
	assert.True(t, fresh.Allowed)
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := newFallbackLimiter(1, 1)

	router := gin.New()
	router.GET("/ping", Middleware(limiter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		router.ServeHTTP(w, req)
		lastCode = w.Code
		if i < 5 {
			assert.Equal(t, http.StatusOK, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestGetStats(t *testing.T) {
	limiter := newFallbackLimiter(60, 2)
	_, err := limiter.AllowClient(context.Background(), "10.0.0.6")
	require.NoError(t, err)

	stats := limiter.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])
}
