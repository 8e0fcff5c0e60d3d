package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryKV implements KV using nested in-memory maps. Thread-safe.
// Used in tests and when no database is configured.
type MemoryKV struct {
	mu     sync.RWMutex
	stores map[string]map[string]Record
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{stores: make(map[string]map[string]Record)}
}

func (m *MemoryKV) Get(ctx context.Context, storeName, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.stores[storeName][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", storeName, key, ErrNotFound)
	}
	out := rec
	out.Value = append([]byte(nil), rec.Value...)
	return &out, nil
}

func (m *MemoryKV) Save(ctx context.Context, storeName string, rec Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stores[storeName] == nil {
		m.stores[storeName] = make(map[string]Record)
	}
	rec.Value = append([]byte(nil), rec.Value...)
	rec.UpdatedAt = time.Now()
	m.stores[storeName][rec.Key] = rec
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, storeName, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stores[storeName][key]; !ok {
		return fmt.Errorf("%s/%s: %w", storeName, key, ErrNotFound)
	}
	delete(m.stores[storeName], key)
	return nil
}

// GetAll returns every record in the store sorted by key for deterministic
// iteration.
func (m *MemoryKV) GetAll(ctx context.Context, storeName string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.stores[storeName]))
	for _, rec := range m.stores[storeName] {
		out := rec
		out.Value = append([]byte(nil), rec.Value...)
		records = append(records, out)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}
