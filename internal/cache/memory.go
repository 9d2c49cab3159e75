package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value    []byte
	storedAt time.Time
}

// Memory is the in-process Cache. Values are stored as given; callers must
// not mutate slices after Put or after Get.
type Memory struct {
	// Clock can be overridden in tests to exercise expiry.
	Clock func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewMemory returns an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{
		Clock:   time.Now,
		entries: make(map[string]entry),
	}
}

func (m *Memory) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock()
}

// Get returns the stored value while now - storedAt < TTL. Expired entries are
// removed on the way out.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.storedAt) >= TTL {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Put(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]entry)
	}
	m.entries[key] = entry{value: value, storedAt: m.now()}
}

func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
