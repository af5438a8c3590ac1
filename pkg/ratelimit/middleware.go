package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the caller's address; gin resolves proxies
// according to the engine's trusted proxy settings.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// UserOrIP charges authenticated requests to the user and anonymous ones to the address.
func UserOrIP(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// Limiter hands out one token bucket per key, evicting idle buckets.
type Limiter struct {
	cache    *expirable.LRU[string, *rate.Limiter]
	interval time.Duration
	burst    int
}

func New(interval time.Duration, burst int, cacheSize int, ttl time.Duration) *Limiter {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &Limiter{
		cache:    expirable.NewLRU[string, *rate.Limiter](cacheSize, nil, ttl),
		interval: interval,
		burst:    burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	limiter, exists := l.cache.Get(key)
	if !exists {
		limiter = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.cache.Add(key, limiter)
	}
	return limiter
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
func (l *Limiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := l.get(key(c))

		reservation := limiter.Reserve()
		if !reservation.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.burst))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%.0f", math.Floor(limiter.Tokens())))
		c.Next()
	}
}
