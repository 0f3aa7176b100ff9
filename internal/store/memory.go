package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// MemoryStore is the in-process HotStore used for local development and
// tests. Locks honour their TTL; everything else lives until deleted.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.IncidentSession
	traces   map[string][]models.ThoughtEntry
	locks    map[string]time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.IncidentSession),
		traces:   make(map[string][]models.ThoughtEntry),
		locks:    make(map[string]time.Time),
	}
}

func (m *MemoryStore) SaveSession(ctx context.Context, sess *models.IncidentSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("save: session has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

func (m *MemoryStore) LoadSession(ctx context.Context, id string) (*models.IncidentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrSessionNotFound, id)
	}
	return sess.Clone(), nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.traces, id)
	return nil
}

func (m *MemoryStore) ListActiveSessions(ctx context.Context) ([]*models.IncidentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]*models.IncidentSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess.Clone())
	}
	return sessions, nil
}

func (m *MemoryStore) AppendTrace(ctx context.Context, id string, entries ...models.ThoughtEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[id] = append(m.traces[id], entries...)
	return nil
}

func (m *MemoryStore) Trace(ctx context.Context, id string) ([]models.ThoughtEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ThoughtEntry(nil), m.traces[id]...), nil
}

func (m *MemoryStore) LockTarget(ctx context.Context, target string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry := time.Time{}
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	m.locks[target] = expiry
	return nil
}

func (m *MemoryStore) UnlockTarget(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, target)
	return nil
}

func (m *MemoryStore) LockedTargets(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	targets := make([]string, 0, len(m.locks))
	for target, expiry := range m.locks {
		if !expiry.IsZero() && expiry.Before(now) {
			delete(m.locks, target)
			continue
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (m *MemoryStore) Close() error { return nil }
