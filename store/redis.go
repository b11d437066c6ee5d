package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectionTimeout = 5 * time.Second

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyAddress is returned when no Redis address is configured.
var ErrEmptyAddress = errors.New("redis address is required")

// NewRedisClient connects and pings Redis.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore implements Store with native Redis strings, sets and lists.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client. Close closes the client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return wrap("set", key, s.client.Set(ctx, key, value, 0).Err())
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap("del", keys[0], s.client.Del(ctx, keys...).Err())
}

func (s *RedisStore) IsMember(ctx context.Context, setKey, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, setKey, member).Result()
	if err != nil {
		return false, wrap("sismember", setKey, err)
	}
	return ok, nil
}

func (s *RedisStore) Insert(ctx context.Context, setKey, member string) error {
	return wrap("sadd", setKey, s.client.SAdd(ctx, setKey, member).Err())
}

func (s *RedisStore) Cardinality(ctx context.Context, setKey string) (int64, error) {
	n, err := s.client.SCard(ctx, setKey).Result()
	if err != nil {
		return 0, wrap("scard", setKey, err)
	}
	return n, nil
}

func (s *RedisStore) PushBounded(ctx context.Context, listKey, entry string, maxLen int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, listKey, entry)
		pipe.LTrim(ctx, listKey, 0, int64(maxLen-1))
		return nil
	})
	return wrap("lpush", listKey, err)
}

func (s *RedisStore) Range(ctx context.Context, listKey string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	entries, err := s.client.LRange(ctx, listKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, wrap("lrange", listKey, err)
	}
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
