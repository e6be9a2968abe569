package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

// Redis is the production cache backed by a shared Redis instance.
type Redis struct{ rdb *r.Client }

func NewRedis(rdb *r.Client) *Redis { return &Redis{rdb} }

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == r.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache get")
	}
	return val, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrap(c.rdb.Set(ctx, key, value, ttl).Err(), "cache set")
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	return errors.Wrap(c.rdb.Del(ctx, key).Err(), "cache delete")
}
