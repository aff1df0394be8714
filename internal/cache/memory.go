package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Cache. It keeps the same JSON round-trip as the
// Redis backend so both behave identically to callers.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string, dest any) error {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return ErrMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetMulti(ctx context.Context, entries map[string]any) error {
	encoded := make(map[string][]byte, len(entries))
	for key, value := range entries {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("cache encode %s: %w", key, err)
		}
		encoded[key] = data
	}

	m.mu.Lock()
	for key, data := range encoded {
		m.entries[key] = data
	}
	m.mu.Unlock()
	return nil
}
