package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(now *time.Time) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     func() time.Time { return *now },
	}
}

func TestRateLimiter_DeniesOverLimit(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&current)

	for i := 0; i < 3; i++ {
		allowed, _ := rl.Check("chat", "user-1", 3, time.Minute)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter := rl.Check("chat", "user-1", 3, time.Minute)
	assert.False(t, allowed)
	assert.Equal(t, 60, retryAfter)
}

func TestRateLimiter_RetryAfterDecreasesAsWindowElapses(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&current)

	for i := 0; i < 2; i++ {
		rl.Check("chat", "user-1", 2, time.Minute)
	}

	_, first := rl.Check("chat", "user-1", 2, time.Minute)

	current = current.Add(20 * time.Second)
	_, second := rl.Check("chat", "user-1", 2, time.Minute)

	current = current.Add(20 * time.Second)
	_, third := rl.Check("chat", "user-1", 2, time.Minute)

	assert.Greater(t, first, second)
	assert.Greater(t, second, third)
}

func TestRateLimiter_WindowExpiryResetsQuota(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&current)

	for i := 0; i < 2; i++ {
		rl.Check("chat", "user-1", 2, time.Minute)
	}
	allowed, _ := rl.Check("chat", "user-1", 2, time.Minute)
	assert.False(t, allowed)

	current = current.Add(61 * time.Second)

	// Fresh window, full quota again.
	for i := 0; i < 2; i++ {
		allowed, _ := rl.Check("chat", "user-1", 2, time.Minute)
		assert.True(t, allowed, "request %d after reset should be allowed", i+1)
	}
	allowed, _ = rl.Check("chat", "user-1", 2, time.Minute)
	assert.False(t, allowed)
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&current)

	for i := 0; i < 2; i++ {
		rl.Check("chat", "user-1", 2, time.Minute)
	}
	allowed, _ := rl.Check("chat", "user-1", 2, time.Minute)
	assert.False(t, allowed)

	allowed, _ = rl.Check("devotional", "user-1", 2, 10*time.Minute)
	assert.True(t, allowed)
}

func TestRateLimiter_IdentitiesAreIndependent(t *testing.T) {
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&current)

	rl.Check("chat", "user-1", 1, time.Minute)
	allowed, _ := rl.Check("chat", "user-1", 1, time.Minute)
	assert.False(t, allowed)

	allowed, _ = rl.Check("chat", "user-2", 1, time.Minute)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&current)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	r.POST("/chat", rl.Limit("chat", 1, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	first := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/chat", nil)
	r.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/chat", nil)
	r.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	var body map[string]interface{}
	err := json.Unmarshal(second.Body.Bytes(), &body)
	assert.NoError(t, err)
	assert.Equal(t, float64(60), body["retryAfterSeconds"])
	assert.Contains(t, body["error"], "Rate limit exceeded")
}
