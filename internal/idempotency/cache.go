// Package idempotency maps client-supplied keys to previously computed
// results for a bounded retention window.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cache stores the exact response bytes served for a key. Get must return
// the identical previously stored payload; callers never recompute for a
// key found present.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, result []byte) error
	Stop()
}

type record struct {
	result    []byte
	createdAt time.Time
}

// MemoryCache is a process-local cache with a periodic age-based sweep.
// Construct per instance; Stop halts the sweep task.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]record
	window  time.Duration
	now     func() time.Time
	cron    *cron.Cron
}

// NewMemoryCache starts a cache retaining records for window, swept every
// sweepEvery. Sweep granularity stays at or under window/3 so staleness
// is bounded.
func NewMemoryCache(window, sweepEvery time.Duration) *MemoryCache {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if sweepEvery <= 0 || sweepEvery > window/3 {
		sweepEvery = window / 3
	}
	c := &MemoryCache{
		records: make(map[string]record),
		window:  window,
		now:     time.Now,
		cron:    cron.New(),
	}
	_, _ = c.cron.AddFunc(fmt.Sprintf("@every %s", sweepEvery), c.sweep)
	c.cron.Start()
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(rec.createdAt) > c.window {
		return nil, false, nil
	}
	return rec.result, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, result []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = record{result: result, createdAt: c.now()}
	return nil
}

// Stop halts the background sweep. Records stay readable until expiry.
func (c *MemoryCache) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *MemoryCache) sweep() {
	cutoff := c.now().Add(-c.window)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rec := range c.records {
		if rec.createdAt.Before(cutoff) {
			delete(c.records, key)
		}
	}
}
