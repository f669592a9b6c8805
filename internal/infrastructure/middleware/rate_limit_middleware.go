package middleware

import (
	"net/http"
	"sync"
	"time"

	"callwire/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc derives the token-bucket key for one request.
type KeyFunc func(c *gin.Context) string

// ByClientIP keys buckets on the requesting address. Used on the public
// routes where no session identity exists yet.
func ByClientIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// ByParticipant keys buckets on the authenticated participant id, so one
// participant cannot starve the others from behind a shared NAT. It falls
// back to the address when no claims are present and must run after
// AuthMiddleware.
func ByParticipant() KeyFunc {
	return func(c *gin.Context) string {
		if claims, ok := ClaimsFrom(c); ok {
			return "participant:" + claims.ParticipantID
		}
		return "ip:" + c.ClientIP()
	}
}

// A bucket idle this long has fully refilled and carries no state worth
// keeping.
const staleLimiterAge = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterTable holds one token bucket per key. Stale buckets are evicted
// opportunistically once the table grows past a threshold, so short-lived
// keys cannot grow it without bound.
type limiterTable struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rate    rate.Limit
	burst   int
}

func newLimiterTable(r rate.Limit, burst int) *limiterTable {
	return &limiterTable{
		entries: make(map[string]*limiterEntry),
		rate:    r,
		burst:   burst,
	}
}

func (t *limiterTable) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[key]
	if !exists {
		if len(t.entries) >= 1024 {
			t.evictStale(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// evictStale runs under t.mu.
func (t *limiterTable) evictStale(now time.Time) {
	for key, entry := range t.entries {
		if now.Sub(entry.lastSeen) > staleLimiterAge {
			delete(t.entries, key)
		}
	}
}

// RateLimit returns middleware that applies a token bucket per key derived
// by keyFor. Passes everything through when rate limiting is disabled.
func RateLimit(cfg *config.Config, keyFor KeyFunc) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	table := newLimiterTable(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	return func(c *gin.Context) {
		if !table.allow(keyFor(c), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// ConcurrencyLimit caps requests in flight across the whole server.
func ConcurrencyLimit(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled || cfg.RateLimiting.HTTP.MaxConcurrent <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	sem := make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "too many concurrent requests",
			})
		}
	}
}
