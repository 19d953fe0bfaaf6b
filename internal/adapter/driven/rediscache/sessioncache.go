// Package rediscache stores the session cache in Redis so several server
// instances share one discovery result.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// DefaultKey is the Redis key the cached entry is stored under.
const DefaultKey = "dsbpanel:session:latest"

// Compile-time interface satisfaction check.
var _ driven.SessionCache = (*SessionCache)(nil)

// SessionCache is the Redis implementation of the SessionCache port. Entries
// are written with the session TTL so Redis expires them natively.
type SessionCache struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a SessionCache.
type Option func(*SessionCache)

// WithClock sets the clock Put measures an entry's age against. It should
// be the clock that stamps CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(c *SessionCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewSessionCache creates a cache writing to key with the given TTL.
// A zero ttl stores entries without expiry.
func NewSessionCache(client redis.Cmdable, key string, ttl time.Duration, opts ...Option) *SessionCache {
	if key == "" {
		key = DefaultKey
	}
	c := &SessionCache{client: client, key: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect parses a redis:// URL, opens a client and verifies it with PING.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// Get returns the cached entry, or (nil, nil) when absent or expired.
func (c *SessionCache) Get(ctx context.Context) (*model.CachedEntry, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session cache: %w", err)
	}

	var entry model.CachedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal session cache: %w", err)
	}
	return &entry, nil
}

// Put stores entry, expiring it ttl after its capture time.
func (c *SessionCache) Put(ctx context.Context, entry model.CachedEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal session cache: %w", err)
	}

	expiry := c.ttl
	if expiry > 0 && !entry.CapturedAt.IsZero() {
		expiry = c.ttl - c.now().Sub(entry.CapturedAt)
		if expiry <= 0 {
			return c.Clear(ctx)
		}
	}

	if err := c.client.Set(ctx, c.key, data, expiry).Err(); err != nil {
		return fmt.Errorf("set session cache: %w", err)
	}
	return nil
}

// Clear deletes the cached entry.
func (c *SessionCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}
