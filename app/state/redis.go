package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps watermarks in a single hash, field per source.
type RedisStore struct {
	client *redis.Client
	key    string
}

func OpenRedis(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) String() string {
	return "redis:" + s.key
}

func (s *RedisStore) Load(ctx context.Context) (Watermarks, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Watermarks{}, fmt.Errorf("failed to read hash %s: %w", s.key, err)
	}
	return parseEntries(s.String(), raw)
}

// Save replaces the hash in one MULTI/EXEC block.
func (s *RedisStore) Save(ctx context.Context, marks Watermarks) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(marks) > 0 {
			pipe.HSet(ctx, s.key, encodeHash(marks))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write hash %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeHash(marks Watermarks) map[string]any {
	values := make(map[string]any, len(marks))
	for key, t := range marks {
		values[key] = formatTimestamp(t)
	}
	return values
}
