package planstore

import (
	"context"
	"strings"
	"sync"
)

type planKey struct {
	query    string
	category string
}

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	allowed map[string]struct{}

	mu    sync.RWMutex
	plans map[planKey]string
}

// NewMemoryStore creates an empty in-memory store. An empty category list
// disables whitelist checking.
func NewMemoryStore(categories ...string) *MemoryStore {
	return &MemoryStore{
		allowed: whitelistSet(categories),
		plans:   make(map[planKey]string),
	}
}

// GetPlan implements Store. A non-whitelisted category reads as not found,
// never as an error.
func (s *MemoryStore) GetPlan(ctx context.Context, query, category string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	query, category, err := normalizeKey(query, category, s.allowed)
	if err != nil {
		return "", ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[planKey{query: query, category: category}]
	if !ok {
		return "", ErrNotFound
	}
	return plan, nil
}

// PutPlan implements Store.
func (s *MemoryStore) PutPlan(ctx context.Context, query, plan, category string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	query, category, err := normalizeKey(query, category, s.allowed)
	if err != nil {
		return err
	}
	if strings.TrimSpace(plan) == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[planKey{query: query, category: category}] = plan
	return nil
}

// Len returns the number of stored plans.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.plans)
}
