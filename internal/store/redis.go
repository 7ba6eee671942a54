package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV on a Redis instance.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV connects to Redis and verifies the connection.
func NewRedisKV(ctx context.Context, addr, password string, db int) (*RedisKV, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisKV{client: rdb, prefix: "tabwatch:"}, nil
}

func (r *RedisKV) Get(ctx context.Context, keys []string) (map[string][]byte, error) {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}

	values, err := r.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisKV) Set(ctx context.Context, pairs map[string][]byte) error {
	args := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		args = append(args, r.prefix+k, v)
	}
	return r.client.MSet(ctx, args...).Err()
}

// Close closes the underlying Redis client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
