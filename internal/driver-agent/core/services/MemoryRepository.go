package services

import (
	"context"
	"sync"

	"driver-agent/internal/driver-agent/core/domain/model"
)

// MemoryRepository keeps pending updates in process memory. It is not
// durable and is used for tests and the "memory" store setting.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[model.UpdateKind][]model.PendingUpdate
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[model.UpdateKind][]model.PendingUpdate)}
}

func (m *MemoryRepository) Append(_ context.Context, u model.PendingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[u.Kind] = append(m.entries[u.Kind], u)
	return nil
}

func (m *MemoryRepository) List(_ context.Context, kind model.UpdateKind) ([]model.PendingUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PendingUpdate(nil), m.entries[kind]...), nil
}

func (m *MemoryRepository) Delete(_ context.Context, kind model.UpdateKind, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := m.entries[kind][:0]
	for _, u := range m.entries[kind] {
		if _, ok := drop[u.ID]; !ok {
			kept = append(kept, u)
		}
	}
	m.entries[kind] = kept
	return nil
}
