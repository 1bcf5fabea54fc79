package ratelimiter

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, cache GetterSetter, clock *fakeClock) Limiter {
	t.Helper()
	return New(Options{
		MaxRatePerSecond: 2,
		MaxBurst:         3,
		Cache:            cache,
		CacheTTL:         time.Minute,
		Now:              clock.Now,
	})
}

func exerciseBucket(t *testing.T, rl Limiter, clock *fakeClock) {
	t.Helper()

	for i := range 3 {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d within burst was rejected", i)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("request beyond burst was allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other sources must have their own bucket")
	}

	// 2 tokens per second: 250ms is not enough for a whole token.
	clock.Advance(250 * time.Millisecond)
	if rl.Allow("1.2.3.4") {
		t.Fatal("partial refill must not grant a token")
	}

	clock.Advance(250 * time.Millisecond)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("token should be refilled after 500ms")
	}

	clock.Advance(time.Hour)
	if got := rl.Remaining("1.2.3.4"); got != 3 {
		t.Fatalf("Remaining after long idle = %d, want burst 3", got)
	}
}

func TestRateLimiterInMemory(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cache := NewMemory(clock.Now)
	t.Cleanup(func() { _ = cache.Close() })

	exerciseBucket(t, newTestLimiter(t, cache, clock), clock)
}

func TestMemoryExpiresEntries(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cache := NewMemory(clock.Now)

	if err := cache.SetWithExpiration("short", 1, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cache.Set("forever", 2); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Second)
	if _, err := cache.Get("short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired entry: err = %v, want ErrCacheMiss", err)
	}
	if v, err := cache.Get("forever"); err != nil || v != 2 {
		t.Fatalf("Get(forever) = %d, %v", v, err)
	}

	for i := range sweepEvery {
		_ = cache.SetWithExpiration(fmt.Sprintf("k%d", i), i, time.Nanosecond)
		clock.Advance(time.Millisecond)
	}
	if n := cache.Len(); n > 8 {
		t.Fatalf("sweep left %d entries", n)
	}
}

func TestRateLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	exerciseBucket(t, newTestLimiter(t, NewRedis(client), clock), clock)

	if !mr.Exists("burner:" + bucketKeyPrefix + "1.2.3.4") {
		t.Fatal("bucket state was not stored in redis")
	}
}

func TestGetSourceKey(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, SourceHeaderKey: "X-Forwarded-For"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := rl.GetSourceKey(r); got != "10.0.0.1" {
		t.Fatalf("remote addr key = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := rl.GetSourceKey(r); got != "203.0.113.7" {
		t.Fatalf("forwarded key = %q", got)
	}
}

func TestWindowLimiter(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWindowLimiter(2, time.Second)
	l.now = clock.Now

	if ok, _ := l.Allow("c1"); !ok {
		t.Fatal("first event rejected")
	}
	if ok, _ := l.Allow("c1"); !ok {
		t.Fatal("second event rejected")
	}
	ok, wait := l.Allow("c1")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("third event = %v, wait %v", ok, wait)
	}

	clock.Advance(time.Second)
	if ok, _ := l.Allow("c1"); !ok {
		t.Fatal("new window should allow")
	}

	l.Forget("c1")
	if _, found := l.windows["c1"]; found {
		t.Fatal("Forget kept state")
	}
}
