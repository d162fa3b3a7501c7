package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	goredis "github.com/go-redis/redis/v9"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
)

const (
	sessionKeyPrefix = "alphabridge:sessions:"
	profileKeyPrefix = "alphabridge:profiles:"
)

type Config struct {
	URI string
	// TTL applies to session entries only; zero keeps them forever, which
	// is the reference behavior.
	TTL time.Duration
}

// Server IDs and usernames are attacker-supplied strings; hashing them
// keeps the key space uniform and free of separator injection.
func hashKey(prefix, s string) string {
	return prefix + strconv.FormatUint(xxhash.Sum64String(s), 16)
}

// takeIfMatchesScript checks and consumes a session entry in one atomic
// step on the redis side.
var takeIfMatchesScript = goredis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
	return 0
end
local entry = cjson.decode(v)
if entry.username == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return -1
`)

// SessionStore is a redis-backed alphabridge.SessionStore, for deployments
// where several bridge instances have to share pending handshakes.
type SessionStore struct {
	cli *goredis.Client
	ttl time.Duration
}

func NewSessionStore(cfg Config) (*SessionStore, error) {
	opts, err := goredis.ParseURL(cfg.URI)
	if err != nil {
		return nil, err
	}
	return &SessionStore{
		cli: goredis.NewClient(opts),
		ttl: cfg.TTL,
	}, nil
}

func (s *SessionStore) Put(ctx context.Context, serverID, username string) error {
	entry := alphabridge.SessionEntry{
		ServerID:  serverID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	bb, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.cli.Set(ctx, hashKey(sessionKeyPrefix, serverID), bb, s.ttl).Err()
}

func (s *SessionStore) TakeIfMatches(ctx context.Context, serverID, username string) error {
	res, err := takeIfMatchesScript.Run(ctx, s.cli, []string{hashKey(sessionKeyPrefix, serverID)}, username).Int()
	if err != nil {
		return err
	}

	switch res {
	case 1:
		return nil
	case -1:
		return alphabridge.ErrUsernameMismatch
	default:
		return alphabridge.ErrSessionNotFound
	}
}

func (s *SessionStore) Entries(ctx context.Context) ([]alphabridge.SessionEntry, error) {
	entries := []alphabridge.SessionEntry{}

	iter := s.cli.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		v, err := s.cli.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == goredis.Nil {
				continue
			}
			return nil, err
		}

		var entry alphabridge.SessionEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SessionStore) Remove(ctx context.Context, serverID string) (bool, error) {
	n, err := s.cli.Del(ctx, hashKey(sessionKeyPrefix, serverID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.cli.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// Evict is a no-op; expiry is delegated to the key TTL.
func (s *SessionStore) Evict(context.Context, time.Duration) (int, error) {
	return 0, nil
}

// ProfileCache is a redis-backed alphabridge.ProfileCache.
type ProfileCache struct {
	cli *goredis.Client
}

func NewProfileCache(cfg Config) (*ProfileCache, error) {
	opts, err := goredis.ParseURL(cfg.URI)
	if err != nil {
		return nil, err
	}
	return &ProfileCache{
		cli: goredis.NewClient(opts),
	}, nil
}

func (c *ProfileCache) Put(ctx context.Context, p alphabridge.Profile) error {
	bb, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, hashKey(profileKeyPrefix, p.Username), bb, 0).Err()
}

func (c *ProfileCache) Get(ctx context.Context, username string) (alphabridge.Profile, error) {
	v, err := c.cli.Get(ctx, hashKey(profileKeyPrefix, username)).Result()
	if err != nil {
		if err == goredis.Nil {
			return alphabridge.Profile{}, alphabridge.ErrProfileNotFound
		}
		return alphabridge.Profile{}, err
	}

	var p alphabridge.Profile
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return alphabridge.Profile{}, err
	}
	return p, nil
}

func (c *ProfileCache) Remove(ctx context.Context, username string) (bool, error) {
	n, err := c.cli.Del(ctx, hashKey(profileKeyPrefix, username)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *ProfileCache) Len(ctx context.Context) (int, error) {
	n := 0
	iter := c.cli.Scan(ctx, 0, profileKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return n, nil
}
