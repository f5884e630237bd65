package store

import (
	"context"
	"sync"

	"wondertales/internal/domain/session"
)

// MemoryStore keeps the snapshot for the lifetime of the process.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *session.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return session.Snapshot{}, ErrNotFound
	}
	return m.snapshot.Recovered(), nil
}

func (m *MemoryStore) Save(ctx context.Context, snapshot session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot.Pages = append(snapshot.Pages[:0:0], snapshot.Pages...)
	m.snapshot = &snapshot
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }
