package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/Toumari/NorthStar/auth"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-caller token bucket. Callers are keyed by token
// subject when authenticated, else by client IP.
type RateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	visitors    map[string]*visitor
	entryTTL    time.Duration
	lastCleanup time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:       rate.Limit(rps),
		burst:       burst,
		visitors:    make(map[string]*visitor),
		entryTTL:    10 * time.Minute,
		lastCleanup: time.Now(),
	}
}

func (rl *RateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) >= time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.entryTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastCleanup = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// Middleware must run after auth.Middleware to key on the subject.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	if rl == nil || rl.limit <= 0 || rl.burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok && claims.Subject != "" {
			key = "user:" + claims.Subject
		}
		if !rl.allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}
