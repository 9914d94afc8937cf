package channel

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup is an optional distributed backing for processed-event-key
// deduplication, used when a channel runtime's cycles are spread across
// replicas that don't share a single in-memory ProcessedKeyFIFO. Each
// key is stored with ttl so the set self-prunes without an explicit cap.
type RedisDedup struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisDedupConfig configures a RedisDedup backend.
type RedisDedupConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisDedup connects to Redis and verifies reachability with Ping,
// mirroring the teacher's own agent/persistence Redis-store constructors.
func NewRedisDedup(ctx context.Context, cfg RedisDedupConfig) (*RedisDedup, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tau:dedup:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{client: client, keyPrefix: prefix, ttl: ttl}, nil
}

func (d *RedisDedup) redisKey(component string, key EventKey) string {
	return d.keyPrefix + component + ":" + string(key)
}

// Contains reports whether key was already marked processed for
// component.
func (d *RedisDedup) Contains(ctx context.Context, component string, key EventKey) (bool, error) {
	n, err := d.client.Exists(ctx, d.redisKey(component, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key as processed for component, expiring after the
// configured ttl.
func (d *RedisDedup) Mark(ctx context.Context, component string, key EventKey) error {
	return d.client.Set(ctx, d.redisKey(component, key), "1", d.ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (d *RedisDedup) Close() error {
	return d.client.Close()
}
