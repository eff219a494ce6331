// Package ratelimit provides per-license rate limiting middleware.
//
// Requests carrying a license key share one bucket per key, so a single
// site cannot starve the provider pool. Anonymous requests fall back to
// per-IP buckets.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ipvlabs/vendord/internal/auth"
)

// Config configures rate limiting.
type Config struct {
	// RequestsPerMinute is the max requests per bucket per minute
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to clean old entries
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60, // 1 req/sec average
		BurstSize:         10, // Allow bursts of 10
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks token buckets by key.
type Limiter struct {
	cfg     Config
	mu      sync.RWMutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a new rate limiter and starts its cleanup goroutine.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// cleanup removes stale buckets periodically.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * time.Minute)
			for key, b := range l.buckets {
				if b.lastCheck.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow checks if a request should be allowed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]

	if !exists {
		l.buckets[key] = &bucket{
			tokens:    float64(l.cfg.BurstSize - 1),
			lastCheck: now,
		}
		return true
	}

	// Token bucket refill
	elapsed := now.Sub(b.lastCheck).Seconds()
	tokensPerSecond := float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens += elapsed * tokensPerSecond

	if b.tokens > float64(l.cfg.BurstSize) {
		b.tokens = float64(l.cfg.BurstSize)
	}

	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}

	return false
}

// Middleware returns a Gin middleware that buckets by license key when one
// was extracted upstream, otherwise by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if lk, ok := auth.LicenseKey(c); ok && lk != "" {
			key = "license:" + lk
		}

		if !l.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
