package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/pkg/contract"
)

// MetricsRecorder counts cache operations. Satisfied by
// internal/observability.Metrics.
type MetricsRecorder interface {
	RecordCacheOp(op string)
}

// DefaultMaxEntries bounds the cache when no capacity is configured.
const DefaultMaxEntries = 1000

// Entry is a cached tool result with its retention window. Owned exclusively
// by the cache; callers only ever see copies of Value.
type Entry struct {
	Key       string
	Value     *contract.ToolExecutionResult
	CreatedAt time.Time
	ExpiresAt time.Time // zero = never expires
	HitCount  int64
}

// IdempotencyCache reuses successful tool results across calls that share a
// semantic identity. Keys are derived by contract.IdempotencyKey; the
// per-round tool_call_id never participates.
//
// The cache is process-wide shared state: one mutex guards the map, making
// get/set/delete/eviction atomic with respect to each other across turns.
type IdempotencyCache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// Options configures the cache.
type Options struct {
	// MaxEntries caps the number of entries (default 1000). When full, the
	// entry with the oldest CreatedAt is evicted before a new key is inserted.
	MaxEntries int

	// Logger receives cache lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics optionally receives hit/miss/eviction counters.
	Metrics MetricsRecorder
}

// New creates an idempotency cache.
func New(opts Options) *IdempotencyCache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &IdempotencyCache{
		entries:    make(map[string]*Entry),
		maxEntries: opts.MaxEntries,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Get returns the cached result for key, or nil if absent. Expired entries
// are dropped lazily here.
func (c *IdempotencyCache) Get(key string) (*contract.ToolExecutionResult, bool) {
	return c.getAt(key, time.Now())
}

func (c *IdempotencyCache) getAt(key string, now time.Time) (*contract.ToolExecutionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.countOp("miss")
		return nil, false
	}
	if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.countOp("expire")
		c.countOp("miss")
		return nil, false
	}
	entry.HitCount++
	c.countOp("hit")
	return entry.Value, true
}

// Set stores a result under key for ttl. A zero ttl means the entry never
// expires. When the cache is full, the oldest entry by CreatedAt makes room
// first (not LRU by access).
func (c *IdempotencyCache) Set(key string, value *contract.ToolExecutionResult, ttl time.Duration) error {
	return c.setAt(key, value, ttl, time.Now())
}

func (c *IdempotencyCache) setAt(key string, value *contract.ToolExecutionResult, ttl time.Duration, now time.Time) error {
	if key == "" || value == nil {
		return contract.NewError(contract.ErrValidation, "cache key and value are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	c.entries[key] = entry
	c.countOp("store")
	return nil
}

// evictOldest removes the entry with the oldest CreatedAt. Caller holds the lock.
func (c *IdempotencyCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.CreatedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.countOp("evict")
	}
}

// Delete removes a key.
func (c *IdempotencyCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// CleanupExpired removes all expired entries and returns the count removed.
func (c *IdempotencyCache) CleanupExpired() int {
	return c.cleanupExpiredAt(time.Now())
}

func (c *IdempotencyCache) cleanupExpiredAt(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("expired cache entries removed", "count", removed)
	}
	return removed
}

// Size returns the current number of entries.
func (c *IdempotencyCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrCompute consults the cache for the request's idempotency key and runs
// compute on a miss. Under no_cache the compute function always runs and
// nothing is stored. Hits return a copy annotated with cache_hit=true and the
// caller's fresh tool_call_id; the stored entry is not mutated. Only
// successful results are stored, and a store failure degrades to "not
// cached" rather than failing the call.
func (c *IdempotencyCache) GetOrCompute(req *contract.ToolInvocationRequest, compute func() *contract.ToolExecutionResult) *contract.ToolExecutionResult {
	policy := req.Policy()
	if !policy.Cacheable() {
		return compute()
	}

	key := req.IdempotencyKey()
	if cached, ok := c.Get(key); ok {
		return cached.WithCacheHit(req.ToolCallID)
	}

	result := compute()
	if result == nil || !result.Success {
		return result
	}
	if err := c.Set(key, result, policy.TTL()); err != nil {
		c.logger.Warn("cache store failed, result not cached",
			"tool", req.ToolName,
			"error", err)
	}
	return result
}

func (c *IdempotencyCache) countOp(op string) {
	if c.metrics != nil {
		c.metrics.RecordCacheOp(op)
	}
}
