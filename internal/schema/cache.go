// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"sync"
	"time"

	"pgdock/core/internal/dberrors"
)

// DefaultFreshness is how long a snapshot is served from cache before the
// next read triggers a reload.
const DefaultFreshness = 5 * time.Minute

// LoadFunc produces a fresh snapshot. The production loader wraps Introspect
// over the connection's pool.
type LoadFunc func(ctx context.Context) (*Schema, *dberrors.Record)

// Cache holds the schema snapshot for one connection. Expiry is computed at
// read time from the load timestamp; there is no background timer. A failed
// reload never discards the previous snapshot.
type Cache struct {
	load  LoadFunc
	ttl   time.Duration
	clock func() time.Time

	// loadMu serializes loads so concurrent expiry triggers one round-trip.
	// mu alone guards the snapshot, so reads never block on a load.
	loadMu   sync.Mutex
	mu       sync.RWMutex
	snapshot *Schema
	loadedAt time.Time
}

// NewCache creates a cache around load. A ttl <= 0 selects DefaultFreshness.
func NewCache(load LoadFunc, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultFreshness
	}
	return &Cache{load: load, ttl: ttl, clock: time.Now}
}

// Get returns the cached snapshot if present and still fresh; otherwise it
// loads a new one, replacing the entry atomically on success. On load
// failure any previous snapshot stays in place and the error is returned.
func (c *Cache) Get(ctx context.Context) (*Schema, *dberrors.Record) {
	c.mu.RLock()
	s, loadedAt := c.snapshot, c.loadedAt
	c.mu.RUnlock()

	if s != nil && c.clock().Sub(loadedAt) < c.ttl {
		return s, nil
	}
	return c.reload(ctx, false)
}

// Refresh bypasses freshness and reloads unconditionally.
func (c *Cache) Refresh(ctx context.Context) (*Schema, *dberrors.Record) {
	return c.reload(ctx, true)
}

// Peek returns the cached snapshot and its age without triggering a load.
// The second return is false when nothing has been loaded yet.
func (c *Cache) Peek() (*Schema, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, 0, false
	}
	return c.snapshot, c.clock().Sub(c.loadedAt), true
}

// reload runs the loader and installs the result. Loads are serialized:
// when two expired readers race, the loser waits and reuses the winner's
// snapshot instead of introspecting twice.
func (c *Cache) reload(ctx context.Context, force bool) (*Schema, *dberrors.Record) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if !force {
		c.mu.RLock()
		s, loadedAt := c.snapshot, c.loadedAt
		c.mu.RUnlock()
		if s != nil && c.clock().Sub(loadedAt) < c.ttl {
			return s, nil
		}
	}

	s, rec := c.load(ctx)
	if rec != nil {
		return nil, rec
	}

	c.mu.Lock()
	c.snapshot = s
	c.loadedAt = c.clock()
	c.mu.Unlock()
	return s, nil
}
