package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/limoline/dispatch/internal/metrics"
)

const (
	limiterIdleTTL      = time.Hour
	limiterSweepPeriod  = 10 * time.Minute
	defaultRetryAfterSc = 1
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a per-caller token bucket for the whole API. It is separate
// from the per-ride location interval, which the location store enforces.
// Serve evicts idle buckets and makes the limiter a suture.Service.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows rps requests per second per caller with the given
// burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Reserve takes a token for key. It reports whether the request may proceed
// and, if not, how long until it would.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	if limiter.AllowN(now, 1) {
		return true, 0
	}
	// Tokens needed for one more request, at rl.rate per second.
	tokens := limiter.TokensAt(now)
	wait := time.Duration((1 - tokens) / float64(rl.rate) * float64(time.Second))
	return false, wait
}

// Middleware rejects callers over their budget with 429 and Retry-After.
// Authenticated callers are keyed by id, others by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if caller, ok := CallerFrom(c); ok {
			key = "caller:" + caller.ID
		}

		allowed, wait := rl.Reserve(key)
		if !allowed {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			metrics.APIRateLimitHits.WithLabelValues(route).Inc()
			retry := int(math.Ceil(wait.Seconds()))
			if retry < defaultRetryAfterSc {
				retry = defaultRetryAfterSc
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// Len returns the number of tracked callers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Cleanup drops buckets idle for longer than limiterIdleTTL.
func (rl *RateLimiter) Cleanup() int {
	threshold := rl.now().Add(-limiterIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Serve runs Cleanup periodically until ctx is cancelled.
func (rl *RateLimiter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(limiterSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

func (rl *RateLimiter) String() string { return "api-rate-limiter" }
