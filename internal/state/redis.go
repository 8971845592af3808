package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldLastTimestamp = "last_ts"
	fieldCursor        = "anchor"
)

// RedisStore keeps each tenant's watermark in a hash at <prefix><tenant>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("state: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("state: redis connection failed: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "secpoll:watermark:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(tenant string) string { return s.prefix + tenant }

func (s *RedisStore) Load(ctx context.Context, tenant string) (Watermark, error) {
	if err := checkTenant(tenant); err != nil {
		return Watermark{}, err
	}
	vals, err := s.client.HGetAll(ctx, s.key(tenant)).Result()
	if err != nil {
		return Watermark{}, fmt.Errorf("state: redis load %s: %w", tenant, err)
	}
	return Watermark{
		LastTimestamp: vals[fieldLastTimestamp],
		Cursor:        vals[fieldCursor],
	}, nil
}

// Save replaces the hash in one MULTI/EXEC so readers never observe a
// timestamp paired with a stale cursor.
func (s *RedisStore) Save(ctx context.Context, tenant string, wm Watermark) error {
	if err := checkTenant(tenant); err != nil {
		return err
	}
	key := s.key(tenant)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		fields := map[string]any{fieldLastTimestamp: wm.LastTimestamp}
		if wm.Cursor != "" {
			fields[fieldCursor] = wm.Cursor
		}
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("state: redis save %s: %w", tenant, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
