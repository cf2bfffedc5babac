package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a Store with a Redis read-through cache for
// session lookups, which sit on the hot path of every authenticated
// request. All other store calls pass through unchanged.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore constructs the caching decorator. ttl caps how long a
// cached session may be served; entries also never outlive the
// session's own expiry.
func NewCachedStore(store Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: store, client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// FindSession serves the session from cache when possible. Cache
// failures fall back to the underlying store; the cache is an
// optimization, never a source of truth.
func (c *CachedStore) FindSession(ctx context.Context, token string) (*Session, error) {
	payload, err := c.client.Get(ctx, sessionKey(token)).Bytes()
	if err == nil {
		var s Session
		if err := json.Unmarshal(payload, &s); err == nil {
			if time.Now().Before(s.ExpiresAt) {
				return &s, nil
			}
			_ = c.client.Del(ctx, sessionKey(token)).Err()
			return nil, ErrNotFound
		}
	} else if !errors.Is(err, redis.Nil) {
		return c.Store.FindSession(ctx, token)
	}

	session, err := c.Store.FindSession(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache(ctx, session)
	return session, nil
}

// CreateSession writes through to the store and primes the cache.
func (c *CachedStore) CreateSession(ctx context.Context, session Session) (*Session, error) {
	created, err := c.Store.CreateSession(ctx, session)
	if err != nil {
		return nil, err
	}
	c.cache(ctx, created)
	return created, nil
}

// DeleteSession invalidates the cache entry before deleting the row,
// so a revoked session cannot be served stale.
func (c *CachedStore) DeleteSession(ctx context.Context, token string) error {
	_ = c.client.Del(ctx, sessionKey(token)).Err()
	return c.Store.DeleteSession(ctx, token)
}

// DeleteUserSessions invalidates every cached session of the user
// before the bulk delete.
func (c *CachedStore) DeleteUserSessions(ctx context.Context, userID string) error {
	sessions, err := c.Store.ListSessions(ctx, userID)
	if err == nil {
		for _, s := range sessions {
			_ = c.client.Del(ctx, sessionKey(s.Token)).Err()
		}
	}
	return c.Store.DeleteUserSessions(ctx, userID)
}

func (c *CachedStore) cache(ctx context.Context, session *Session) {
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	ttl := c.ttl
	if remaining := time.Until(session.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	_ = c.client.Set(ctx, sessionKey(session.Token), data, ttl).Err()
}
