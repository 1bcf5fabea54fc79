package ratelimiter

import (
	"errors"
	"time"
)

// ErrCacheMiss reports an absent or expired bucket. The limiter treats it as
// a full bucket.
var ErrCacheMiss = errors.New("rate limiter: cache miss")

// GetterSetter stores the two integers a bucket needs per source: its token
// count and the millisecond timestamp of the last refill.
type GetterSetter interface {
	Get(key string) (int, error)
	Set(key string, value int) error
	SetWithExpiration(key string, value int, expiration time.Duration) error
	Close() error
}

var (
	_ GetterSetter = (*Memory)(nil)
	_ GetterSetter = (*Redis)(nil)
)
