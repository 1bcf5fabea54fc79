package ratelimiter

import (
	"sync"
	"time"
)

// sweepEvery is how many writes pass between scans for expired buckets.
const sweepEvery = 1024

type memoryEntry struct {
	value     int
	expiresAt time.Time
}

// Memory keeps bucket state in process. Expired entries read as misses and
// are reclaimed by a sweep that piggybacks on writes, so nothing runs in the
// background.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	writes  int
	now     func() time.Time
}

// NewMemory returns a process-local cache. A nil now uses the wall clock.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (m *Memory) Get(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || m.expired(entry, m.now()) {
		return 0, ErrCacheMiss
	}
	return entry.value, nil
}

func (m *Memory) Set(key string, value int) error {
	return m.SetWithExpiration(key, value, 0)
}

func (m *Memory) SetWithExpiration(key string, value int, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := memoryEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = now.Add(expiration)
	}
	m.entries[key] = entry

	m.writes++
	if m.writes%sweepEvery == 0 {
		for k, e := range m.entries {
			if m.expired(e, now) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

// Len counts live and not yet reclaimed entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

func (m *Memory) expired(e memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
