package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 500 * time.Millisecond

// Redis shares bucket state between instances through the room store's
// Redis deployment.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) GetterSetter {
	return &Redis{client: client, prefix: "burner:"}
}

func (r *Redis) Get(key string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	return v, err
}

func (r *Redis) Set(key string, value int) error {
	return r.SetWithExpiration(key, value, 0)
}

func (r *Redis) SetWithExpiration(key string, value int, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	return r.client.Set(ctx, r.prefix+key, value, expiration).Err()
}

// Close is a no-op; the client belongs to the caller.
func (r *Redis) Close() error {
	return nil
}
