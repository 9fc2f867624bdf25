package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lease only if this process still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockTable implements LockTable as Redis leases so several instances
// share one admission set. The TTL bounds how long a crashed holder can
// block an owner.
type RedisLockTable struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLockTable creates a Redis-backed lock table
func NewRedisLockTable(host string, port int, password string, db int, keyPrefix string, ttl time.Duration, logger *zap.Logger) (*RedisLockTable, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLockTableFromClient(client, keyPrefix, ttl, logger), nil
}

// NewRedisLockTableFromClient wraps an existing client
func NewRedisLockTableFromClient(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisLockTable {
	if keyPrefix == "" {
		keyPrefix = "tempvoice:admission:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLockTable{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
		tokens:    make(map[string]string),
	}
}

func (t *RedisLockTable) leaseKey(key string) string { return t.keyPrefix + key }

// TryAcquire takes the lease with SET NX PX
func (t *RedisLockTable) TryAcquire(ctx context.Context, key string) (bool, error) {
	token := uuid.New().String()
	ok, err := t.client.SetNX(ctx, t.leaseKey(key), token, t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire admission lease: %w", err)
	}
	if !ok {
		return false, nil
	}

	t.mu.Lock()
	t.tokens[key] = token
	t.mu.Unlock()
	return true, nil
}

// Release drops the lease if this process still holds it
func (t *RedisLockTable) Release(ctx context.Context, key string) error {
	t.mu.Lock()
	token, ok := t.tokens[key]
	delete(t.tokens, key)
	t.mu.Unlock()

	if !ok {
		return nil
	}

	deleted, err := releaseScript.Run(ctx, t.client, []string{t.leaseKey(key)}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release admission lease: %w", err)
	}
	if deleted == 0 {
		t.logger.Warn("Admission lease expired before release",
			zap.String("key", key),
			zap.Duration("ttl", t.ttl))
	}
	return nil
}

// Held reports whether any instance holds the lease for key
func (t *RedisLockTable) Held(ctx context.Context, key string) (bool, error) {
	n, err := t.client.Exists(ctx, t.leaseKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the Redis connection
func (t *RedisLockTable) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (t *RedisLockTable) Close() error {
	return t.client.Close()
}
