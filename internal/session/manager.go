package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Manager serializes turns per session and mediates access to the store.
// The pipeline holds the session lock for the whole read-clone-extend-commit
// window, so a turn's mapping commit is atomic even under concurrent
// requests for the same session.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-session mutex and returns its unlock function.
func (m *Manager) Lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// GetOrCreate loads a session, creating an empty one when absent.
// Callers mutating the session must hold its lock.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, ErrNotFound) {
		return NewSession(id), nil
	}
	return nil, fmt.Errorf("load session %s: %w", id, err)
}

// Get loads a session without creating one.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Commit persists the session. Callers must hold the session lock.
func (m *Manager) Commit(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes a session and forgets its lock.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
