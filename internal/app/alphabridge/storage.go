package alphabridge

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned by TakeIfMatches when no entry exists
	// for the server ID, including entries already consumed by an earlier
	// check.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUsernameMismatch is returned by TakeIfMatches when an entry exists
	// for the server ID but was written for a different username. The entry
	// is left untouched.
	ErrUsernameMismatch = errors.New("session username mismatch")
	// ErrProfileNotFound is returned by ProfileCache.Get for usernames that
	// never completed a verification.
	ErrProfileNotFound = errors.New("profile not found")
)

// SessionEntry is one pending handshake, written by a join and consumed by
// at most one check.
type SessionEntry struct {
	ServerID  string    `json:"serverId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore maps the server IDs of pending handshakes to the username
// that joined with them. Implementations must make every operation a single
// atomic step; TakeIfMatches in particular must check and consume without a
// window for a concurrent check to consume the same entry twice.
type SessionStore interface {
	// Put inserts or overwrites the entry for serverID. The legacy protocol
	// owns server ID uniqueness, so the last writer wins.
	Put(ctx context.Context, serverID, username string) error
	// TakeIfMatches consumes the entry for serverID if it was written for
	// username. Returns nil on consumption, ErrSessionNotFound or
	// ErrUsernameMismatch otherwise. A non-matching entry stays retrievable.
	TakeIfMatches(ctx context.Context, serverID, username string) error
	// Entries lists all pending handshakes.
	Entries(ctx context.Context) ([]SessionEntry, error)
	// Remove drops the entry for serverID regardless of its username.
	Remove(ctx context.Context, serverID string) (bool, error)
	Len(ctx context.Context) (int, error)
	// Evict removes entries older than the given age and reports how many
	// it removed. Backends with native expiry may report zero.
	Evict(ctx context.Context, olderThan time.Duration) (int, error)
}

// ProfileCache holds the most recently verified profile per username.
type ProfileCache interface {
	Put(ctx context.Context, p Profile) error
	Get(ctx context.Context, username string) (Profile, error)
	Remove(ctx context.Context, username string) (bool, error)
	Len(ctx context.Context) (int, error)
}
