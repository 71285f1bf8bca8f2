package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const defaultRedisHash = "pricebot:price_history"

// RedisBackend keeps the history in one Redis hash, field per canonical key.
type RedisBackend struct {
	client *redis.Client
	hash   string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Hash     string
}

func NewRedisBackend(opts RedisOptions) *RedisBackend {
	return NewRedisBackendWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts.Hash)
}

func NewRedisBackendWithClient(client *redis.Client, hash string) *RedisBackend {
	if hash == "" {
		hash = defaultRedisHash
	}
	return &RedisBackend{client: client, hash: hash}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Load(ctx context.Context) (map[string]float64, error) {
	fields, err := b.client.HGetAll(ctx, b.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", b.hash, err)
	}
	out := make(map[string]float64, len(fields))
	for k, v := range fields {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out, nil
}

func (b *RedisBackend) Persist(ctx context.Context, key string, snapshot map[string]float64) error {
	v, ok := snapshot[key]
	if !ok {
		return nil
	}
	if err := b.client.HSet(ctx, b.hash, key, strconv.FormatFloat(v, 'g', -1, 64)).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
