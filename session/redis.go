package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each key as a plain Redis string under prefix.
// Mutations run in a MULTI/EXEC pipeline.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedisBackend wraps an existing client. Close does not close the client.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "ledgerauth"
	}
	return &RedisBackend{redis: client, prefix: prefix}
}

// DialRedis connects to addr and returns a backend that owns the client.
func DialRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	b := NewRedisBackend(client, prefix)
	b.owned = true
	return b, nil
}

func (b *RedisBackend) key(name string) string {
	return b.prefix + ":" + name
}

func (b *RedisBackend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.key(k)
	}

	vals, err := b.redis.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (b *RedisBackend) Apply(ctx context.Context, m Mutation) error {
	if len(m.Set) == 0 && len(m.Delete) == 0 {
		return nil
	}
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(m.Delete) > 0 {
			full := make([]string, len(m.Delete))
			for i, k := range m.Delete {
				full[i] = b.key(k)
			}
			pipe.Del(ctx, full...)
		}
		for k, v := range m.Set {
			pipe.Set(ctx, b.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	if b.owned {
		return b.redis.Close()
	}
	return nil
}
