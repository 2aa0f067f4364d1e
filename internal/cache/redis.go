package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"co2-monitor/internal/metrics"
)

// RedisBackend stores JSON-encoded values under a key prefix with a TTL
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisBackend
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return NewRedisBackendFromClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "co2"
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

// Namespace returns a backend on the same client whose keys live under
// prefix:name. Closing it closes the shared client.
func (r *RedisBackend) Namespace(name string) *RedisBackend {
	return &RedisBackend{client: r.client, prefix: r.key(name), ttl: r.ttl}
}

func (r *RedisBackend) key(k string) string {
	return r.prefix + ":" + k
}

func (r *RedisBackend) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RedisOperations.WithLabelValues("get", "miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.RedisOperations.WithLabelValues("get", "error").Inc()
		return false, errors.Wrapf(err, "failed to get %s", key)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.RedisOperations.WithLabelValues("get", "error").Inc()
		return false, errors.Wrapf(err, "failed to decode %s", key)
	}
	metrics.RedisOperations.WithLabelValues("get", "hit").Inc()
	return true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		metrics.RedisOperations.WithLabelValues("set", "error").Inc()
		return errors.Wrapf(err, "failed to set %s", key)
	}
	metrics.RedisOperations.WithLabelValues("set", "ok").Inc()
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		metrics.RedisOperations.WithLabelValues("del", "error").Inc()
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	metrics.RedisOperations.WithLabelValues("del", "ok").Inc()
	return nil
}

// Clear deletes every key under the prefix
func (r *RedisBackend) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.RedisOperations.WithLabelValues("clear", "error").Inc()
		return errors.Wrap(err, "failed to scan cache keys")
	}

	if len(keys) > 0 {
		pipe := r.client.Pipeline()
		for _, k := range keys {
			pipe.Del(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			metrics.RedisOperations.WithLabelValues("clear", "error").Inc()
			return errors.Wrap(err, "failed to delete cache keys")
		}
	}
	metrics.RedisOperations.WithLabelValues("clear", "ok").Inc()
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
