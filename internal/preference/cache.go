package preference

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cacheKeyPrefix = "mailqueue:prefs:"

// noPreferences marks a cached miss so absent rows are not re-queried.
const noPreferences = "null"

// CachedLookup is a read-through Redis cache in front of another Lookup.
// Cache failures are logged and fall through to the underlying lookup.
type CachedLookup struct {
	next   Lookup
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedLookup wraps next. A nil client disables caching.
func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{next: next, client: client, ttl: ttl, log: log}
}

// Get returns cached preferences or loads and caches them.
func (c *CachedLookup) Get(ctx context.Context, email string) (*Preferences, error) {
	if c.client == nil {
		return c.next.Get(ctx, email)
	}

	key := cacheKeyPrefix + NormalizeEmail(email)
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == noPreferences {
			return nil, nil
		}
		var p Preferences
		if jerr := json.Unmarshal([]byte(raw), &p); jerr == nil {
			return &p, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cached preferences")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Msg("preference cache read failed")
	}

	p, err := c.next.Get(ctx, email)
	if err != nil {
		return nil, err
	}

	value := noPreferences
	if p != nil {
		b, merr := json.Marshal(p)
		if merr != nil {
			return p, nil
		}
		value = string(b)
	}
	if serr := c.client.Set(ctx, key, value, c.ttl).Err(); serr != nil {
		c.log.Warn().Err(serr).Msg("preference cache write failed")
	}
	return p, nil
}

// Invalidate drops the cached entry for email.
func (c *CachedLookup) Invalidate(ctx context.Context, email string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKeyPrefix+NormalizeEmail(email)).Err()
}
