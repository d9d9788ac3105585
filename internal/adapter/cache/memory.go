package cache

import (
	"context"
	"sync"
)

type triggerEntry struct {
	date  string
	count int
}

// MemoryCounter Redis 未开启时使用的进程内触发计数
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[uint]triggerEntry
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[uint]triggerEntry)}
}

func (m *MemoryCounter) Count(_ context.Context, userID uint, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok || e.date != date {
		return 0, nil
	}
	return e.count, nil
}

func (m *MemoryCounter) Increment(_ context.Context, userID uint, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[userID]
	if e.date != date {
		e = triggerEntry{date: date}
	}
	e.count++
	m.entries[userID] = e
	return nil
}
