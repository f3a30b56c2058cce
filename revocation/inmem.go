package revocation

import (
	"context"
	"sync"
	"time"
)

// InmemStore is a thread-safe in-memory Store, used in development mode
// and in tests.
type InmemStore struct {
	mu      sync.RWMutex
	revoked map[string]*CredentialRecord
	issued  map[string]*IssuedRecord
}

// NewInmemStore creates an empty in-memory store.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		revoked: make(map[string]*CredentialRecord),
		issued:  make(map[string]*IssuedRecord),
	}
}

func (s *InmemStore) Insert(ctx context.Context, record *CredentialRecord) (*CredentialRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.revoked[record.TokenID]; ok {
		return existing, false, nil
	}

	clone := *record
	s.revoked[record.TokenID] = &clone
	return &clone, true, nil
}

func (s *InmemStore) Get(ctx context.Context, tokenID string) (*CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.revoked[tokenID]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *InmemStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.revoked {
		if record.ExpiresAt.Before(now) {
			delete(s.revoked, id)
			removed++
		}
	}
	for id, record := range s.issued {
		if record.ExpiresAt.Before(now) {
			delete(s.issued, id)
		}
	}
	return removed, nil
}

func (s *InmemStore) RecordIssued(ctx context.Context, issued *IssuedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *issued
	s.issued[issued.TokenID] = &clone
	return nil
}

func (s *InmemStore) ListOutstanding(ctx context.Context, principalID string, now time.Time) ([]*IssuedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var outstanding []*IssuedRecord
	for _, record := range s.issued {
		if record.PrincipalID != principalID || record.ExpiresAt.Before(now) {
			continue
		}
		clone := *record
		outstanding = append(outstanding, &clone)
	}
	return outstanding, nil
}

func (s *InmemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = make(map[string]*CredentialRecord)
	s.issued = make(map[string]*IssuedRecord)
	return nil
}
