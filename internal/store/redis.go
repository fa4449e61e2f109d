package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisStore stores blobs as plain redis strings under prefix+key, without expiry.
func NewRedisStore(client *redis.Client, prefix string, maxBytes int) Store {
	return newJSONStore(&redisBackend{client: client, prefix: prefix}, maxBytes)
}

func (b *redisBackend) name() string { return "redis" }

func (b *redisBackend) get(ctx context.Context, key string) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (b *redisBackend) put(ctx context.Context, key string, value []byte) error {
	return b.client.Set(ctx, b.prefix+key, value, 0).Err()
}

func (b *redisBackend) del(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.prefix+key).Err()
}
