package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Default rate limiter names
const (
	LimiterYouTube    = "youtube"
	LimiterOAuth      = "oauth"
	LimiterFeed       = "feed"
	LimiterProxyCheck = "proxy_check"
)

// Limits configures the default limiter set
type Limits struct {
	YouTubeRequestsPerSecond float64
	YouTubeBurst             int
}

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter(limits Limits) *MultiLimiter {
	m := NewMultiLimiter()

	youtubeRate := limits.YouTubeRequestsPerSecond
	if youtubeRate <= 0 {
		youtubeRate = 1
	}
	youtubeBurst := limits.YouTubeBurst
	if youtubeBurst <= 0 {
		youtubeBurst = 5
	}
	m.AddLimiter(LimiterYouTube, youtubeRate, youtubeBurst)

	// Token endpoint: 5 per second, burst 10
	m.AddLimiter(LimiterOAuth, 5, 10)

	// Channel feeds are public, be polite - 1 per second, burst 5
	m.AddLimiter(LimiterFeed, 1, 5)

	// Health checks go through third-party proxies: 2 per second, burst 5
	m.AddLimiter(LimiterProxyCheck, 2, 5)

	return m
}

// Unlimited returns a limiter set that never blocks. Used by tests and the CLI.
func Unlimited() *MultiLimiter {
	m := NewMultiLimiter()
	for _, name := range []string{LimiterYouTube, LimiterOAuth, LimiterFeed, LimiterProxyCheck} {
		m.limiters[name] = rate.NewLimiter(rate.Inf, 1)
	}
	return m
}
