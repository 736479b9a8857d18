package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Store bounded to a fixed number of entries.
// When full, the least recently used entry is evicted.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemory creates a memory store holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	if size < 1 {
		return nil, errors.New("cache: size must be at least 1")
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries, now: time.Now}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	// Expired entries are left for Set or LRU eviction to replace. Removing
	// here could drop a fresh value written between the read and the remove.
	if !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.entries.Add(key, memoryEntry{
		value:     bytes.Clone(value),
		expiresAt: m.now().Add(ttl),
	})
	return nil
}

// Len reports the number of entries held, including expired ones not yet
// evicted.
func (m *Memory) Len() int {
	return m.entries.Len()
}
