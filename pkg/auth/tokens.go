package auth

import (
	"context"
	"sync"
	"time"
)

// Grant is what a token resolves to.
type Grant struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore maps bearer tokens to grants. Expired grants must not be
// returned.
type TokenStore interface {
	// Put stores a grant under token until grant.ExpiresAt.
	Put(ctx context.Context, token string, grant Grant) error

	// Get returns the grant for token. ok is false when the token is unknown
	// or expired.
	Get(ctx context.Context, token string) (grant Grant, ok bool, err error)

	// Delete revokes token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error

	Close() error
}

// MemoryTokenStore implements TokenStore using an in-memory map.
// This is the default for single-instance deployments.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	grants map[string]Grant
	now    func() time.Time
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		grants: make(map[string]Grant),
		now:    time.Now,
	}
}

func (s *MemoryTokenStore) Put(_ context.Context, token string, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[token] = grant
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, token string) (Grant, bool, error) {
	s.mu.RLock()
	grant, ok := s.grants[token]
	s.mu.RUnlock()

	if !ok {
		return Grant{}, false, nil
	}
	if !s.now().Before(grant.ExpiresAt) {
		s.mu.Lock()
		delete(s.grants, token)
		s.mu.Unlock()
		return Grant{}, false, nil
	}
	return grant, true, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants, token)
	return nil
}

// Close is a no-op.
func (s *MemoryTokenStore) Close() error {
	return nil
}
