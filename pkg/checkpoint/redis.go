package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis checkpoint store.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	Password string
	Database int

	// Prefix is prepended to all checkpoint keys
	Prefix string

	// TTL is the time-to-live for checkpoint keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns defaults for address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "ismn:checkpoints:",
		TTL:          7 * 24 * time.Hour,
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisStore keeps checkpoints in Redis so several machines indexing the
// same archive share them.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	s := &RedisStore{cfg: cfg, client: client}
	if err := s.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return s, nil
}

func (s *RedisStore) key(k string) string {
	return s.cfg.Prefix + k
}

func (s *RedisStore) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// Load retrieves a checkpoint from Redis.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}
	return data, true, nil
}

// Save stores a checkpoint with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint to Redis: %w", err)
	}
	return nil
}

// Delete removes a checkpoint from Redis.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	return s.client.Del(ctx, s.key(key)).Err()
}

// Name returns "redis".
func (s *RedisStore) Name() string { return "redis" }

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Stats returns Redis connection pool statistics.
func (s *RedisStore) Stats() *redis.PoolStats {
	return s.client.PoolStats()
}
