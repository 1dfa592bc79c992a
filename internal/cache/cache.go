package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a string TTL cache. Get reports found=false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Redis struct {
	Client *redis.Client
	Prefix string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{Client: rdb, Prefix: prefix}
}

func (c *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.Client.Get(ctx, c.Prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.Client.Set(ctx, c.Prefix+key, value, ttl).Err()
}
