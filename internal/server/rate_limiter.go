package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// loginLimiter throttles credential guessing with a per-client token
// bucket. Buckets refill continuously and idle clients are swept on
// the next refill pass.
type loginLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	refill   float64
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func newLoginLimiter(capacity int, refillPerSecond float64) *loginLimiter {
	return &loginLimiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(capacity),
		refill:   refillPerSecond,
	}
}

func (l *loginLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastSeen: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * l.refill
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastSeen = now

	for k, other := range l.buckets {
		if now.Sub(other.lastSeen) > 10*time.Minute {
			delete(l.buckets, k)
		}
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects over-limit clients with 429.
func (l *loginLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiError{
				Message: "too many attempts, slow down",
				Code:    "rate_limited",
			})
			return
		}
		c.Next()
	}
}
