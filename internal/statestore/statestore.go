// Package statestore is an OPTIONAL backing for the process State map's
// cross-process mirror: when configured, selected State keys are mirrored
// to Redis so multiple server processes behind a load balancer can share
// coarse lifespan-level facts. Strictly additive — the in-process
// scope.State map remains authoritative per spec.md §3; nothing reads this
// mirror back into it.
package statestore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamgate/streamgate/internal/logging"
)

// Mirror writes selected process-state keys through to Redis, best-effort.
type Mirror struct {
	client  *redis.Client
	enabled bool
}

// New builds a Mirror. An empty addr disables it.
func New(addr, password string, db int) *Mirror {
	if addr == "" {
		return &Mirror{enabled: false}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Mirror{client: client, enabled: true}
}

// Set mirrors key/value to Redis with a short timeout. Failures are logged,
// never returned: this is observability, not a durability guarantee.
func (m *Mirror) Set(ctx context.Context, key string, value any) {
	if !m.enabled {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Set(ctx, key, value, 0).Err(); err != nil {
		logging.Lifespan().Warn().Err(err).Str("key", key).Msg("state mirror write failed")
	}
}

// IsEnabled reports whether the mirror is actually writing to Redis.
func (m *Mirror) IsEnabled() bool { return m.enabled }

// Close closes the underlying Redis client, if any.
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
