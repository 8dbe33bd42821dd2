package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenFetcher performs the credential handshake and returns a bearer token.
type TokenFetcher func(ctx context.Context) (string, error)

// TokenCache keeps one provider access token per process and refreshes it
// before it expires. Concurrent callers during a miss share one handshake.
type TokenCache struct {
	fetch TokenFetcher
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache creates a cache that stores tokens for ttl. A nil clock
// defaults to time.Now.
func NewTokenCache(fetch TokenFetcher, ttl time.Duration, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCache{fetch: fetch, ttl: ttl, now: now}
}

// Get returns the cached token, refreshing it when absent or expired.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.RUnlock()

	if token != "" && c.now().Before(expiresAt) {
		return token, nil
	}
	return c.Refresh(ctx)
}

// Refresh performs a handshake regardless of the cached state. Callers
// arriving while a handshake is in flight wait for its result.
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	v, err, shared := c.group.Do("token", func() (interface{}, error) {
		token, err := c.fetch(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()

		zap.L().Debug("Provider access token refreshed", zap.Duration("ttl", c.ttl))
		return token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		zap.L().Debug("Provider access token shared with concurrent caller")
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Get performs a handshake.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
