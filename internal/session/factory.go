package session

import (
	"fmt"
	"time"
)

// NewStore creates a session store for the configured backend.
// Supported backends: "memory" (default) and "redis".
func NewStore(backend, redisURL string, ttl time.Duration) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis session store requires SESSION_REDIS_URL")
		}
		return NewRedisStore(RedisConfig{URL: redisURL, TTL: ttl})
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", backend)
	}
}
