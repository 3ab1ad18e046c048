package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces cached outcomes in a shared Redis.
const keyPrefix = "runrate:outcome:"

// DefaultRedisTTL is used when NewRedisStore is given a zero TTL.
const DefaultRedisTTL = 30 * time.Minute

// RedisStore caches outcomes in Redis so several forecaster instances can
// share results. Entries expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis at addr and verifies the connection.
// A zero ttl uses DefaultRedisTTL.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis TTL must be >= 0")
	}
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

func redisKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("entry key cannot be empty")
	}
	for _, c := range key {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return "", fmt.Errorf("invalid entry key %q: only alphanumeric characters allowed", key)
		}
	}
	return keyPrefix + key, nil
}

// conn returns the live client, or redis.ErrClosed after Close.
func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.client == nil {
		return nil, redis.ErrClosed
	}
	return r.client, nil
}

// Put stores entry as JSON under "runrate:outcome:{key}".
func (r *RedisStore) Put(ctx context.Context, entry Entry) error {
	key, err := redisKey(entry.Key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	client, err := r.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store entry in redis: %w", err)
	}

	return nil
}

// Get loads the entry stored under key. A missing key is not an error.
func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	rk, err := redisKey(key)
	if err != nil {
		return Entry{}, false, err
	}

	client, err := r.conn()
	if err != nil {
		return Entry{}, false, err
	}

	data, err := client.Get(ctx, rk).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to get entry from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return entry, true, nil
}

// Close closes the Redis client. It is safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}
