package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/burner/internal/domain"
)

type memoryEntry struct {
	meta      *domain.RoomMeta
	expiresAt time.Time
}

// MemoryRoomRepository keeps RoomMeta in process memory. The mutex is the atomic
// section for admission; expired rooms are dropped on access and by the
// janitor.
type MemoryRoomRepository struct {
	rooms map[string]*memoryEntry // ID -> entry
	now   func() time.Time
	mu    *sync.RWMutex
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[string]*memoryEntry),
		now:   time.Now,
		mu:    &sync.RWMutex{},
	}
}

// lookup returns a live entry. Callers must hold the write lock.
func (r *MemoryRoomRepository) lookup(roomID string) (*memoryEntry, bool) {
	entry, exists := r.rooms[roomID]
	if !exists {
		return nil, false
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.rooms, roomID)
		return nil, false
	}
	return entry, true
}

func (r *MemoryRoomRepository) evictExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for id, entry := range r.rooms {
		if !now.Before(entry.expiresAt) {
			delete(r.rooms, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor sweeps expired rooms every interval until ctx is done.
func (r *MemoryRoomRepository) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictExpired()
		case <-ctx.Done():
			return
		}
	}
}

// Create adds a room if its ID is unique.
func (r *MemoryRoomRepository) Create(ctx context.Context, meta *domain.RoomMeta) error {
	if meta == nil || meta.RoomID == "" || meta.TTL <= 0 {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lookup(meta.RoomID); exists {
		return domain.ErrRoomAlreadyExists
	}

	r.rooms[meta.RoomID] = &memoryEntry{
		meta:      meta.Clone(),
		expiresAt: r.now().Add(meta.TTL),
	}

	return nil
}

func (r *MemoryRoomRepository) Get(ctx context.Context, roomID string) (*domain.RoomMeta, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.lookup(roomID)
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	meta := entry.meta.Clone()
	meta.TTL = entry.expiresAt.Sub(r.now())
	return meta, nil
}

func (r *MemoryRoomRepository) Admit(ctx context.Context, roomID, presented, candidate string) (domain.Admission, error) {
	if roomID == "" {
		return domain.Admission{}, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.lookup(roomID)
	if !exists {
		return domain.Admission{}, domain.ErrRoomNotFound
	}

	return entry.meta.Admit(presented, candidate)
}

func (r *MemoryRoomRepository) TTL(ctx context.Context, roomID string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.lookup(roomID)
	if !exists {
		return 0, domain.ErrRoomNotFound
	}

	return entry.expiresAt.Sub(r.now()), nil
}

func (r *MemoryRoomRepository) ExtendTTL(ctx context.Context, roomID string, by, limit time.Duration) (time.Duration, error) {
	if by <= 0 {
		return 0, domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.lookup(roomID)
	if !exists {
		return 0, domain.ErrRoomNotFound
	}

	now := r.now()
	remaining := entry.expiresAt.Sub(now)
	next := min(remaining+by, max(limit, remaining))
	entry.expiresAt = now.Add(next)

	return next, nil
}

func (r *MemoryRoomRepository) Delete(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lookup(roomID); !exists {
		return domain.ErrRoomNotFound
	}

	delete(r.rooms, roomID)
	return nil
}
