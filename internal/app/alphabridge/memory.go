package alphabridge

import (
	"context"
	"sync"
	"time"
)

type memorySessionStore struct {
	mu      sync.Mutex
	entries map[string]SessionEntry
}

// NewMemorySessionStore returns an in-process SessionStore guarded by a
// single mutex. Entries never expire unless Evict is called.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		entries: map[string]SessionEntry{},
	}
}

func (s *memorySessionStore) Put(_ context.Context, serverID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[serverID] = SessionEntry{
		ServerID:  serverID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *memorySessionStore) TakeIfMatches(_ context.Context, serverID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[serverID]
	if !ok {
		return ErrSessionNotFound
	}
	if entry.Username != username {
		return ErrUsernameMismatch
	}
	delete(s.entries, serverID)
	return nil
}

func (s *memorySessionStore) Entries(_ context.Context) ([]SessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]SessionEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *memorySessionStore) Remove(_ context.Context, serverID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[serverID]
	delete(s.entries, serverID)
	return ok, nil
}

func (s *memorySessionStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *memorySessionStore) Evict(_ context.Context, olderThan time.Duration) (int, error) {
	deadline := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for serverID, entry := range s.entries {
		if entry.CreatedAt.Before(deadline) {
			delete(s.entries, serverID)
			n++
		}
	}
	return n, nil
}

type memoryProfileCache struct {
	mu       sync.Mutex
	profiles map[string]Profile
}

// NewMemoryProfileCache returns an in-process ProfileCache. Entries are
// overwritten on every successful verification and never evicted.
func NewMemoryProfileCache() ProfileCache {
	return &memoryProfileCache{
		profiles: map[string]Profile{},
	}
}

func (c *memoryProfileCache) Put(_ context.Context, p Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.Username] = p
	return nil
}

func (c *memoryProfileCache) Get(_ context.Context, username string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.profiles[username]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return p, nil
}

func (c *memoryProfileCache) Remove(_ context.Context, username string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.profiles[username]
	delete(c.profiles, username)
	return ok, nil
}

func (c *memoryProfileCache) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.profiles), nil
}
