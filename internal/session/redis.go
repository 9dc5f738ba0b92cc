package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "confirmdialog:session:"

// RedisBackend stores each session as one Redis hash whose key expires after
// the idle TTL.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend connects using a redis:// URL and verifies the connection.
func NewRedisBackend(ctx context.Context, url string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &RedisBackend{client: client, ttl: normalizeTTL(ttl)}, nil
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (b *RedisBackend) Get(ctx context.Context, sessionID, name string) ([]byte, bool, error) {
	v, err := b.client.HGet(ctx, redisKey(sessionID), name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "redis hget")
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, sessionID, name string, value []byte) error {
	key := redisKey(sessionID)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, name, value)
		pipe.Expire(ctx, key, b.ttl)
		return nil
	})
	return errors.Wrap(err, "redis hset")
}

func (b *RedisBackend) Delete(ctx context.Context, sessionID, name string) error {
	return errors.Wrap(b.client.HDel(ctx, redisKey(sessionID), name).Err(), "redis hdel")
}

func (b *RedisBackend) Destroy(ctx context.Context, sessionID string) error {
	return errors.Wrap(b.client.Del(ctx, redisKey(sessionID)).Err(), "redis del")
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
