package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit is a token bucket per caller: the authenticated subject when
// an earlier middleware set one, the client IP otherwise. r is requests
// per second, b the burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		visitors = map[string]*visitor{}
		swept    = time.Now()
	)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if now.Sub(swept) > limiterIdle {
			for k, v := range visitors {
				if now.Sub(v.lastSeen) > limiterIdle {
					delete(visitors, k)
				}
			}
			swept = now
		}
		v, ok := visitors[key]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(r, b)}
			visitors[key] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if sub := GetSubject(c); sub != "" {
			key = "sub:" + sub
		}
		if !limiterFor(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
