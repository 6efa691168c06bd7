package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Second

type cacheEntry struct {
	result    *remittance.ReconciliationResult
	expiresAt time.Time
}

func (e cacheEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// InMemoryResultCache keeps results in process, grouped by payment reference
// so a reference can be invalidated across every threshold at once. Stored
// results are shared with callers and must not be modified.
type InMemoryResultCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once

	hits   int64
	misses int64
}

// InMemoryOption configures an InMemoryResultCache
type InMemoryOption func(*InMemoryResultCache)

// WithInMemoryLogger sets the logger
func WithInMemoryLogger(logger *zap.Logger) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.logger = logger
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.now = now
	}
}

// WithCleanupInterval sets how often expired entries are purged in the
// background. Zero disables the background purge.
func WithCleanupInterval(d time.Duration) InMemoryOption {
	return func(c *InMemoryResultCache) {
		c.cleanupInterval = d
	}
}

// NewInMemoryResultCache creates a cache whose entries live for ttl. Close
// stops the background purge.
func NewInMemoryResultCache(ttl time.Duration, opts ...InMemoryOption) *InMemoryResultCache {
	c := &InMemoryResultCache{
		entries:         make(map[string]map[string]cacheEntry),
		ttl:             ttl,
		now:             time.Now,
		logger:          zap.NewNop(),
		cleanupInterval: defaultCleanupInterval,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupInterval > 0 {
		go c.cleanupExpired()
	}
	return c
}

func (c *InMemoryResultCache) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.Purge(); removed > 0 {
				c.logger.Debug("Purged expired reconciliations", zap.Int("removed", removed))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Get returns the cached result, or nil on a miss.
func (c *InMemoryResultCache) Get(_ context.Context, reference string, threshold decimal.Decimal) (*remittance.ReconciliationResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[reference][thresholdField(threshold)]
	c.mu.RUnlock()

	if !ok || entry.isExpired(c.now()) {
		atomic.AddInt64(&c.misses, 1)
		return nil, nil
	}

	atomic.AddInt64(&c.hits, 1)
	return entry.result, nil
}

// Set stores result under (reference, threshold). Expired entries of the
// same reference are dropped while the lock is held.
func (c *InMemoryResultCache) Set(_ context.Context, reference string, threshold decimal.Decimal, result *remittance.ReconciliationResult) error {
	if result == nil {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	byThreshold, ok := c.entries[reference]
	if !ok {
		byThreshold = make(map[string]cacheEntry)
		c.entries[reference] = byThreshold
	}
	for field, entry := range byThreshold {
		if entry.isExpired(now) {
			delete(byThreshold, field)
		}
	}
	byThreshold[thresholdField(threshold)] = cacheEntry{result: result, expiresAt: now.Add(c.ttl)}
	return nil
}

// Invalidate drops every cached result for reference.
func (c *InMemoryResultCache) Invalidate(_ context.Context, reference string) error {
	c.mu.Lock()
	delete(c.entries, reference)
	c.mu.Unlock()

	c.logger.Debug("Invalidated cached reconciliations", zap.String("payment_reference", reference))
	return nil
}

// Purge removes all expired entries and returns how many were removed.
func (c *InMemoryResultCache) Purge() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	defer c.mu.Unlock()

	for reference, byThreshold := range c.entries {
		for field, entry := range byThreshold {
			if entry.isExpired(now) {
				delete(byThreshold, field)
				removed++
			}
		}
		if len(byThreshold) == 0 {
			delete(c.entries, reference)
		}
	}
	return removed
}

// Stats returns hit/miss counters and the number of stored entries.
func (c *InMemoryResultCache) Stats() Stats {
	c.mu.RLock()
	entries := 0
	for _, byThreshold := range c.entries {
		entries += len(byThreshold)
	}
	c.mu.RUnlock()

	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: entries,
	}
}

// Close stops the background purge. Safe to call more than once.
func (c *InMemoryResultCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
