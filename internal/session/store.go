package session

import (
	"context"
	"sync"
	"time"

	"tolerance-journey/internal/models"
)

// Store хранит последние снимки сессий.
type Store interface {
	Save(ctx context.Context, snap models.Snapshot, ttl time.Duration) error
	// Load возвращает models.ErrNotFound, если снимка нет или он истек.
	Load(ctx context.Context, sessionID string) (models.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

type memoryItem struct {
	snap      models.Snapshot
	expiresAt time.Time
}

// MemoryStore - Store в памяти процесса.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, snap models.Snapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snap.SessionID] = memoryItem{snap: snap, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (models.Snapshot, error) {
	s.mu.RLock()
	item, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, models.ErrNotFound
	}
	if s.now().After(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, sessionID)
		s.mu.Unlock()
		return models.Snapshot{}, models.ErrNotFound
	}
	return item.snap, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	return nil
}

// Purge удаляет истекшие снимки.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	now := s.now()
	for id, item := range s.items {
		if now.After(item.expiresAt) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
