package history

import (
	"context"
	"sync"

	"github.com/hyperjump/lumi/internal/models"
)

// MemoryStore keeps turns in process memory. Used by tests and the ephemeral CLI chat.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*models.Turn
	locks    *sessionLocks
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]*models.Turn),
		locks:    newSessionLocks(),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(ctx context.Context, sessionID string, turn *models.Turn) (*models.Turn, error) {
	t, err := prepare(sessionID, turn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(ctx, "append", err)
	}
	unlock := m.locks.lock(sessionID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	t.Seq = int64(len(m.sessions[sessionID])) + 1
	m.sessions[sessionID] = append(m.sessions[sessionID], t)
	out := *t
	return &out, nil
}

// Read implements Store.
func (m *MemoryStore) Read(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.sessions[sessionID]
	out := make([]*models.Turn, len(turns))
	for i, t := range turns {
		c := *t
		out[i] = &c
	}
	return out, nil
}

// Reset implements Store.
func (m *MemoryStore) Reset(ctx context.Context, sessionID string) error {
	if err := validateSession(sessionID); err != nil {
		return err
	}
	unlock := m.locks.lock(sessionID)
	defer unlock()
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
