package store

import (
	"context"
	"sync"
)

// MemoryKV is an in-process KV used when no Redis is configured, and in
// tests. Contents do not survive a restart.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, keys []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, pairs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range pairs {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}
