package factor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/nutrilog/sessiond/logger"
)

var (
	// ErrStoreClosed is returned when operating on a closed store
	ErrStoreClosed = errors.New("pending-factor store is closed")
)

// PendingSession records that a principal has passed the primary
// credential check and is awaiting second-factor completion. At most
// one exists per principal; a new primary success replaces it.
type PendingSession struct {
	PrincipalID   string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	OriginatingIP string
}

// StoreConfig holds configuration for the pending-factor store
type StoreConfig struct {
	// TTL is the fixed lifetime of a pending session, independent of
	// any credential lifetime.
	TTL time.Duration

	// CacheMaxCost is the maximum cost of cache (in bytes, roughly)
	CacheMaxCost int64

	// CacheNumCounters is the number of keys to track frequency
	CacheNumCounters int64

	// EnableMetrics enables collection of operational metrics
	EnableMetrics bool
}

// DefaultStoreConfig returns a production-ready default configuration
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		TTL:              5 * time.Minute,
		CacheMaxCost:     10 << 20, // 10 MB
		CacheNumCounters: 1e6,
		EnableMetrics:    true,
	}
}

// StoreMetrics tracks operational statistics
type StoreMetrics struct {
	mu                sync.RWMutex
	SessionsStarted   int64
	SessionsReplaced  int64
	SessionsCompleted int64
	Misses            int64
}

func (m *StoreMetrics) IncrementSessionsStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionsStarted++
}

func (m *StoreMetrics) IncrementSessionsReplaced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionsReplaced++
}

func (m *StoreMetrics) IncrementSessionsCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionsCompleted++
}

func (m *StoreMetrics) IncrementMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Misses++
}

func (m *StoreMetrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"sessions_started":   m.SessionsStarted,
		"sessions_replaced":  m.SessionsReplaced,
		"sessions_completed": m.SessionsCompleted,
		"misses":             m.Misses,
	}
}

// PendingStore is the short-lived holding area for in-progress
// multi-factor logins, backed by a TTL-aware cache.
type PendingStore struct {
	mu      sync.RWMutex
	cache   *ristretto.Cache[string, *PendingSession]
	config  *StoreConfig
	log     logger.Logger
	metrics *StoreMetrics
	closed  bool
}

// NewPendingStore creates a pending-factor session store.
func NewPendingStore(log logger.Logger, config *StoreConfig) (*PendingStore, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	if config.TTL <= 0 {
		return nil, errors.New("pending session TTL must be positive")
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *PendingSession]{
		NumCounters: config.CacheNumCounters,
		MaxCost:     config.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return &PendingStore{
		cache:   cache,
		config:  config,
		log:     log.WithSubsystem("factor"),
		metrics: &StoreMetrics{},
	}, nil
}

// Start creates or replaces the pending session for a principal. Two
// concurrent starts for the same principal race; last writer wins,
// which is acceptable because only the holder of the primary
// credential can reach this point.
func (s *PendingStore) Start(principalID, originIP string) (*PendingSession, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	now := time.Now().UTC()
	session := &PendingSession{
		PrincipalID:   principalID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.TTL),
		OriginatingIP: originIP,
	}

	if _, replaced := s.cache.Get(principalID); replaced && s.config.EnableMetrics {
		s.metrics.IncrementSessionsReplaced()
	}

	s.cache.SetWithTTL(principalID, session, 1, s.config.TTL)
	s.cache.Wait()

	if s.config.EnableMetrics {
		s.metrics.IncrementSessionsStarted()
	}

	s.log.Debug("pending-factor session started",
		logger.String("principal_id", principalID),
		logger.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Get returns the pending session for a principal. A miss means "no
// login in progress" whether the session expired or never existed;
// callers must treat both identically.
func (s *PendingStore) Get(principalID string) (*PendingSession, bool) {
	session, found := s.cache.Get(principalID)
	if !found || time.Now().After(session.ExpiresAt) {
		if s.config.EnableMetrics {
			s.metrics.IncrementMisses()
		}
		return nil, false
	}
	return session, true
}

// Complete deletes the pending session. Deleting an absent session is
// a no-op, so a crash between token issuance and deletion leaves only
// a harmless stale entry that the TTL will collect.
func (s *PendingStore) Complete(principalID string) {
	s.cache.Del(principalID)
	s.cache.Wait()

	if s.config.EnableMetrics {
		s.metrics.IncrementSessionsCompleted()
	}

	s.log.Debug("pending-factor session completed",
		logger.String("principal_id", principalID),
	)
}

// GetMetrics returns a snapshot of current metrics
func (s *PendingStore) GetMetrics() map[string]int64 {
	if !s.config.EnableMetrics {
		return nil
	}
	return s.metrics.GetSnapshot()
}

// Close gracefully shuts down the store
func (s *PendingStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cache.Clear()
	s.cache.Close()
}
