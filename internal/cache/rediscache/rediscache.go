package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key the tracker writes.
const DefaultNamespace = "tracker:"

// Store keeps last-known driver positions. A Store built with NewWithClient
// shares the client with other users and does not close it.
type Store struct {
	c         redis.UniversalClient
	namespace string
	owned     bool
}

func New(addr string) *Store {
	return &Store{
		c:         redis.NewClient(&redis.Options{Addr: addr}),
		namespace: DefaultNamespace,
		owned:     true,
	}
}

func NewWithClient(c redis.UniversalClient, namespace string) *Store {
	return &Store{c: c, namespace: namespace}
}

func (s *Store) key(k string) string {
	return s.namespace + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.c.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return val, true, nil
}

// Set stores value under key. A non-positive ttl keeps the entry until deleted.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.c.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "redis del %s", key)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.c.Ping(ctx).Err(), "redis ping")
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.c.Close()
}
