package tokenstore

import (
	"context"
	"sync"

	"github.com/BASIL960/FinalYearProject/internal/domain"
)

// MemoryStore keeps the session in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	creds   domain.Credentials
	profile *domain.UserProfile
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, profile domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &profile
	return nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = session.Credentials
	profile := session.User
	s.profile = &profile
	return nil
}

func (s *MemoryStore) Read(ctx context.Context) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.IsEmpty() {
		return domain.Credentials{}, ErrNotFound
	}
	return s.creds, nil
}

func (s *MemoryStore) ReadProfile(ctx context.Context) (domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return domain.UserProfile{}, ErrNotFound
	}
	return *s.profile, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = domain.Credentials{}
	s.profile = nil
	return nil
}
