package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/formbt/ndi-gateway/core"
)

// MemoryStore is the in-memory counterpart of RedisStore, for development
// and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	revoked     map[string]time.Time
	credentials map[string]core.Credentials
	proofs      map[string]proofRecord
	users       map[string]core.User
	emails      map[string]string // lowercased email → user ID
	usernames   map[string]string // lowercased username → user ID
}

type proofRecord struct {
	payload []byte
	expires time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked:     make(map[string]time.Time),
		credentials: make(map[string]core.Credentials),
		proofs:      make(map[string]proofRecord),
		users:       make(map[string]core.User),
		emails:      make(map[string]string),
		usernames:   make(map[string]string),
	}
}

// Invalidate marks a refresh token ID as revoked.
func (s *MemoryStore) Invalidate(ctx context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

// IsInvalidated checks whether a refresh token ID has been revoked.
func (s *MemoryStore) IsInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, exists := s.revoked[tokenID]
	if !exists || time.Now().After(expiry) {
		return false, nil
	}
	return true, nil
}

// Save stores session credentials. The single lock makes the write atomic:
// both tokens land together or not at all.
func (s *MemoryStore) Save(ctx context.Context, creds core.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[creds.SessionID] = creds
	return nil
}

// Load retrieves session credentials by session ID.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (core.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, exists := s.credentials[sessionID]
	if !exists {
		return core.Credentials{}, core.ErrNotFound
	}
	return creds, nil
}

// Clear removes session credentials.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, sessionID)
	return nil
}

// SaveLatest keeps the most recent webhook payload for a thread.
func (s *MemoryStore) SaveLatest(ctx context.Context, threadID string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs[threadID] = proofRecord{payload: payload, expires: time.Now().Add(ttl)}
	return nil
}

// Latest returns the most recent webhook payload for a thread.
func (s *MemoryStore) Latest(ctx context.Context, threadID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.proofs[threadID]
	if !exists || time.Now().After(rec.expires) {
		return nil, core.ErrNotFound
	}
	return rec.payload, nil
}

// Create stores a new user, refusing duplicate emails or usernames.
func (s *MemoryStore) Create(ctx context.Context, user core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	username := strings.ToLower(user.Username)
	if _, taken := s.emails[email]; taken {
		return core.ErrUserExists
	}
	if _, taken := s.usernames[username]; taken {
		return core.ErrUserExists
	}

	s.emails[email] = user.ID
	s.usernames[username] = user.ID
	s.users[user.ID] = user
	return nil
}

// FindByID loads a user record.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return core.User{}, core.ErrNotFound
	}
	return user, nil
}

// Exists reports whether the email or username is already taken.
func (s *MemoryStore) Exists(ctx context.Context, email, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, taken := s.emails[strings.ToLower(email)]; taken {
		return true, nil
	}
	_, taken := s.usernames[strings.ToLower(username)]
	return taken, nil
}
