// Package packages implements the installed-package cache: the orchestrator
// asks an executor for its installed Python packages at most once per TTL
// window, refreshing lazily rather than on every request. Two backends share
// one interface: an in-memory cache for a single orchestrator process, and a
// Redis-backed cache for deployments running more than one process that want
// the lazily-refreshed list shared instead of refetched per process.
package packages

import (
	"context"
	"sync"
	"time"
)

// Fetcher retrieves the current installed-package list from the executor.
type Fetcher func(ctx context.Context) ([]string, error)

// Cache returns the installed-package list, refreshing it lazily.
type Cache interface {
	Get(ctx context.Context) ([]string, error)
}

// MemoryCache is a single-process, TTL-bounded cache. It serves a stale list
// rather than propagate a fetch error, since "installed packages" rarely
// change mid-run and an error here shouldn't stall an error-classification
// decision that only needs an approximate, possibly slightly outdated list.
type MemoryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	fetch     Fetcher
	packages  []string
	fetchedAt time.Time
	hasData   bool
}

// NewMemoryCache builds a MemoryCache that refreshes via fetch at most once
// per ttl.
func NewMemoryCache(ttl time.Duration, fetch Fetcher) *MemoryCache {
	return &MemoryCache{ttl: ttl, fetch: fetch}
}

// Get returns the cached package list, refreshing first if the TTL has
// elapsed or nothing has been fetched yet.
func (c *MemoryCache) Get(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasData && time.Since(c.fetchedAt) < c.ttl {
		return c.packages, nil
	}

	pkgs, err := c.fetch(ctx)
	if err != nil {
		if c.hasData {
			return c.packages, nil
		}
		return nil, err
	}

	c.packages = pkgs
	c.fetchedAt = time.Now()
	c.hasData = true
	return pkgs, nil
}

// Invalidate forces the next Get to refetch regardless of TTL.
func (c *MemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasData = false
}
