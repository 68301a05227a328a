package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const sweepInterval = 30 * time.Second

type bucket struct {
	count     int
	expiresAt time.Time
}

// RateLimiter is an in-process fixed-window counter keyed by scope and
// identity. State is advisory abuse protection only: it is lost on restart
// and an expired bucket counts as reset whether or not the sweeper has
// removed it yet.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go rl.sweep()
	return rl
}

// sweep evicts expired buckets so the map stays memory-bound. Runs on its
// own goroutine and never blocks shutdown.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		now := rl.now()
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if !b.expiresAt.After(now) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Check consumes one slot in the window for scope+identity. When the limit
// is hit it returns the whole seconds remaining until the window resets.
func (rl *RateLimiter) Check(scope, identity string, limit int, window time.Duration) (allowed bool, retryAfter int) {
	key := fmt.Sprintf("%s:%s", scope, identity)
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok || !b.expiresAt.After(now) {
		rl.buckets[key] = &bucket{count: 1, expiresAt: now.Add(window)}
		return true, 0
	}

	if b.count >= limit {
		secs := int(b.expiresAt.Sub(now).Seconds())
		if b.expiresAt.Sub(now)%time.Second != 0 {
			secs++
		}
		return false, secs
	}

	b.count++
	return true, 0
}

// Limit builds a gin middleware enforcing a fixed window for one scope.
// Identity is the authenticated user when present, the client IP otherwise.
func (rl *RateLimiter) Limit(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetString("user_id")
		if identity == "" {
			identity = c.ClientIP()
		}
		if identity == "" {
			identity = "anonymous"
		}

		allowed, retryAfter := rl.Check(scope, identity, limit, window)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":             "Rate limit exceeded. Please wait before trying again.",
				"retryAfterSeconds": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
