package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/nutrilog/sessiond/logger"
	"github.com/nutrilog/sessiond/principal"
)

// Entry is the denormalized authorization view of a principal. Entries
// carry no timer expiry; their validity is governed entirely by the
// coherency notifier.
type Entry struct {
	PrincipalID string              `json:"principal_id"`
	Tier        string              `json:"tier"`
	Permissions map[string]struct{} `json:"permissions"`
	Profile     principal.Profile   `json:"profile"`
	CachedAt    time.Time           `json:"cached_at"`
}

// HasPermission reports whether the entry grants a permission.
func (e *Entry) HasPermission(name string) bool {
	_, ok := e.Permissions[name]
	return ok
}

// CacheConfig holds configuration for the identity read cache
type CacheConfig struct {
	// CacheMaxCost is the maximum cost of cache (in bytes, roughly)
	CacheMaxCost int64

	// CacheNumCounters is the number of keys to track frequency
	CacheNumCounters int64

	// EnableMetrics enables collection of operational metrics
	EnableMetrics bool
}

// DefaultCacheConfig returns a production-ready default configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		CacheMaxCost:     50 << 20, // 50 MB
		CacheNumCounters: 1e6,
		EnableMetrics:    true,
	}
}

// CacheMetrics tracks operational statistics
type CacheMetrics struct {
	mu           sync.RWMutex
	Hits         int64
	Misses       int64
	Evictions    int64
	WarmFailures int64
}

func (m *CacheMetrics) IncrementHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hits++
}

func (m *CacheMetrics) IncrementMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Misses++
}

func (m *CacheMetrics) IncrementEvictions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Evictions++
}

func (m *CacheMetrics) IncrementWarmFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WarmFailures++
}

func (m *CacheMetrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"hits":          m.Hits,
		"misses":        m.Misses,
		"evictions":     m.Evictions,
		"warm_failures": m.WarmFailures,
	}
}

// Cache is the identity read cache. Misses recompute synchronously
// from the principal store; concurrent misses for the same principal
// may both recompute, which is deliberate: recomputation is idempotent
// and cheaper than serializing reads behind a lock.
type Cache struct {
	cache   *ristretto.Cache[string, *Entry]
	source  principal.Store
	config  *CacheConfig
	log     logger.Logger
	metrics *CacheMetrics
}

// NewCache creates an identity read cache over a principal store.
func NewCache(source principal.Store, log logger.Logger, config *CacheConfig) (*Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *Entry]{
		NumCounters: config.CacheNumCounters,
		MaxCost:     config.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return &Cache{
		cache:   cache,
		source:  source,
		config:  config,
		log:     log.WithSubsystem("identity"),
		metrics: &CacheMetrics{},
	}, nil
}

// GetOrWarm returns the cached entry for a principal, recomputing and
// storing it on a miss. A failure to store the recomputed entry is
// non-fatal: the fresh value is still returned to the caller.
func (c *Cache) GetOrWarm(ctx context.Context, principalID string) (*Entry, error) {
	if entry, found := c.cache.Get(principalID); found {
		if c.config.EnableMetrics {
			c.metrics.IncrementHits()
		}
		return entry, nil
	}

	if c.config.EnableMetrics {
		c.metrics.IncrementMisses()
	}

	entry, err := c.compute(ctx, principalID)
	if err != nil {
		if c.config.EnableMetrics {
			c.metrics.IncrementWarmFailures()
		}
		return nil, err
	}

	if !c.cache.Set(principalID, entry, 1) {
		c.log.Debug("identity entry not admitted to cache",
			logger.String("principal_id", principalID),
		)
	}
	c.cache.Wait()

	return entry, nil
}

// Invalidate evicts the entry for a principal. Idempotent.
func (c *Cache) Invalidate(principalID string) {
	c.cache.Del(principalID)
	c.cache.Wait()
	if c.config.EnableMetrics {
		c.metrics.IncrementEvictions()
	}
}

// Peek returns the cached entry without warming. Used by tests and
// diagnostics.
func (c *Cache) Peek(principalID string) (*Entry, bool) {
	return c.cache.Get(principalID)
}

func (c *Cache) compute(ctx context.Context, principalID string) (*Entry, error) {
	p, err := c.source.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}

	permissions := make(map[string]struct{}, len(p.Permissions))
	for _, name := range p.Permissions {
		permissions[name] = struct{}{}
	}

	return &Entry{
		PrincipalID: p.ID,
		Tier:        p.Tier,
		Permissions: permissions,
		Profile:     p.Profile,
		CachedAt:    time.Now().UTC(),
	}, nil
}

// GetMetrics returns a snapshot of current metrics
func (c *Cache) GetMetrics() map[string]int64 {
	if !c.config.EnableMetrics {
		return nil
	}
	return c.metrics.GetSnapshot()
}

// Close releases cache resources.
func (c *Cache) Close() {
	c.cache.Clear()
	c.cache.Close()
}
