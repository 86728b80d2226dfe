// Package cache provides a short-TTL Redis lookup cache ahead of the
// relational store for the forward proxy's agent→vps→user→plan identity
// chain (spec.md §4.1). It is a performance layer only: a cache miss
// always falls through to the store, and no enforcement decision is ever
// made against a cached value — only identity-chain rows are cached.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdentityChain is the cached shape of the agent→vps→user→plan
// resolution the forward proxy performs on every connection.
type IdentityChain struct {
	AgentID        string
	AgentUserID    string
	VpsID          string
	VpsProviderTag string
	UserPlanID     string
	UserStatus     string
}

// Cache wraps a go-redis client. A nil *Cache is valid and treats every
// lookup as a miss, so callers can disable caching without branching.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

const defaultTTL = 30 * time.Second

// New connects to Redis at addr/db. Returns an error if the initial ping
// fails — callers decide whether a cache is required or may be skipped.
func New(addr string, db int) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed (%s): %w", addr, err)
	}

	return &Cache{rdb: rdb, ttl: defaultTTL}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

func identityKey(agentID string) string {
	return "identchain:" + agentID
}

// GetIdentityChain returns the cached chain for an agent, or ok=false on
// miss, disabled cache, or any decode error (a decode error is treated as
// a miss rather than an error — the caller always has the store to fall
// back to).
func (c *Cache) GetIdentityChain(ctx context.Context, agentID string) (IdentityChain, bool) {
	if c == nil {
		return IdentityChain{}, false
	}

	val, err := c.rdb.Get(ctx, identityKey(agentID)).Bytes()
	if err != nil {
		return IdentityChain{}, false
	}

	var chain IdentityChain
	if err := json.Unmarshal(val, &chain); err != nil {
		return IdentityChain{}, false
	}
	return chain, true
}

// SetIdentityChain caches a resolved chain for the default TTL. Errors
// are swallowed — a failed cache write never affects correctness, only
// the next lookup's latency.
func (c *Cache) SetIdentityChain(ctx context.Context, chain IdentityChain) {
	if c == nil {
		return
	}
	b, err := json.Marshal(chain)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, identityKey(chain.AgentID), b, c.ttl)
}

// InvalidateIdentityChain drops a cached chain, used when the monitor
// stops a VPS so the proxy does not keep enforcing against a stale state
// for the remainder of the TTL window.
func (c *Cache) InvalidateIdentityChain(ctx context.Context, agentID string) {
	if c == nil {
		return
	}
	c.rdb.Del(ctx, identityKey(agentID))
}
