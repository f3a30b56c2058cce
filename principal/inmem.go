package principal

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InmemStore is a thread-safe in-memory Store.
type InmemStore struct {
	mu      sync.RWMutex
	byID    map[string]*Principal
	byEmail map[string]string
}

// NewInmemStore creates an empty in-memory principal store.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		byID:    make(map[string]*Principal),
		byEmail: make(map[string]string),
	}
}

func (s *InmemStore) Get(ctx context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InmemStore) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *InmemStore) Create(ctx context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := s.byEmail[normalizeEmail(p.Email)]; exists {
		return ErrAlreadyExists
	}

	clone := p.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	clone.UpdatedAt = clone.CreatedAt

	s.byID[clone.ID] = clone
	s.byEmail[normalizeEmail(clone.Email)] = clone.ID
	return nil
}

func (s *InmemStore) Update(ctx context.Context, id string, mutate func(*Principal) ([]string, error)) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	oldEmail := normalizeEmail(p.Email)
	changed, err := mutate(p)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()

	if newEmail := normalizeEmail(p.Email); newEmail != oldEmail {
		delete(s.byEmail, oldEmail)
		s.byEmail[newEmail] = id
	}
	return changed, nil
}

func (s *InmemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, normalizeEmail(p.Email))
	delete(s.byID, id)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
