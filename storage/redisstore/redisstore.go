// Package redisstore keeps the key/value store in Redis so several workstations
// or processes can share one signed-in session.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/comptamaroc/webclient/storage"
	"github.com/redis/go-redis/v9"
)

var _ storage.Store = (*RedisStore)(nil)

// RedisStore namespaces keys with a prefix. Values carry no TTL: the record lives
// until it is removed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
