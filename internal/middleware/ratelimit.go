package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/pkg/response"
	"golang.org/x/time/rate"
)

// callerLimiter pairs a token bucket with its last activity.
type callerLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles gateway callers. Requests carrying an app token get
// a bucket per token, so one noisy app cannot starve others sharing a NAT;
// requests without one fall back to a per-IP bucket.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerLimiter
	rps     rate.Limit
	burst   int
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// the given burst per caller.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		callers: make(map[string]*callerLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go rl.evictIdle()
	return rl
}

// callerKey identifies the bucket for a request. App tokens are keyed as-is
// without authenticating them; a flood with a bogus token still lands in one
// bucket and is throttled before it reaches the token lookup.
func (rl *RateLimiter) callerKey(c *gin.Context) string {
	if token, ok := bearerToken(c); ok {
		return "app:" + token
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.callers[key]
	if !ok {
		v = &callerLimiter{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.callers[key] = v
	}
	v.lastSeen = time.Now()
	return v.bucket.Allow()
}

// evictIdle drops buckets idle for 10 minutes so one-off callers do not
// accumulate forever.
func (rl *RateLimiter) evictIdle() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for key, v := range rl.callers {
			if time.Since(v.lastSeen) > 10*time.Minute {
				delete(rl.callers, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware returns a Gin middleware enforcing the per-caller limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.callerKey(c)) {
			response.Error(c, response.NewTooManyRequests("rate limit exceeded, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
