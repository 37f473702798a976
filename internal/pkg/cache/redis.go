package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another worker already holds a lock
var ErrLockHeld = errors.New("lock held by another worker")

// Store wraps a redis client. A nil *Store, or one built without an address,
// is a valid no-op cache so callers never have to branch on Redis being up.
type Store struct {
	rdb    *redis.Client
	locker *redislock.Client
}

// Connect dials redis and pings it once. An empty address yields a no-op store.
func Connect(ctx context.Context, addr, password string) (*Store, error) {
	if addr == "" {
		return &Store{}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
		PoolSize: 50,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return &Store{}, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}

	return NewStore(rdb), nil
}

// NewStore wraps an existing client
func NewStore(rdb *redis.Client) *Store {
	if rdb == nil {
		return &Store{}
	}
	return &Store{rdb: rdb, locker: redislock.New(rdb)}
}

// Enabled reports whether a redis client is configured
func (s *Store) Enabled() bool {
	return s != nil && s.rdb != nil
}

// GetObject loads key into dest. The bool is false on a miss.
func (s *Store) GetObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetObject stores obj as JSON under key with the given expiry
func (s *Store) SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, exp).Err()
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Obtain takes a short-lived distributed lock. Without redis it returns a
// no-op release so callers proceed unlocked.
func (s *Store) Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error) {
	if !s.Enabled() || s.locker == nil {
		return func() {}, nil
	}

	lock, err := s.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// release on a fresh context so a cancelled pass still frees the key
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(relCtx)
	}, nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.rdb.Close()
}
