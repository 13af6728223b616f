package auth

import (
	"context"
	"sync"
	"time"

	"github.com/st20medic/trucks/internal/config"
	"github.com/st20medic/trucks/internal/store"
)

type cacheEntry struct {
	staffID   string
	expiresAt time.Time
}

// Authenticator validates staff API keys for the trigger and clearance
// endpoints. Static config keys first, then an in-memory cache, then Redis.
type Authenticator struct {
	localCache sync.Map
	redis      *store.RedisStore
	ttl        time.Duration
	staticKeys map[string]bool
}

func NewAuthenticator(cfg *config.Config, redis *store.RedisStore) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		redis:      redis,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
	}
}

func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	// Level 0: static config keys
	if a.staticKeys[apiKey] {
		return true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(apiKey)
	}

	// Level 2: Redis lookup
	staffID, err := a.redis.GetStaffKey(ctx, apiKey)
	if err != nil || staffID == "" {
		return false
	}

	// Populate in-memory cache
	a.localCache.Store(apiKey, cacheEntry{
		staffID:   staffID,
		expiresAt: time.Now().Add(a.ttl),
	})

	return true
}
