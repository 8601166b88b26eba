package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
// Mappings survive across requests but not process restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Session

	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

// NewMemoryStore creates an in-memory session store. When ttl > 0 a
// background sweeper drops sessions idle for longer than ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]*Session),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweep()
	}
	return s
}

// Get retrieves one session by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Put stores or replaces a session.
func (s *MemoryStore) Put(_ context.Context, session *Session) error {
	c := session.Clone()
	s.mu.Lock()
	s.items[c.ID] = c
	s.mu.Unlock()
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close stops the idle sweeper.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweep() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)
			s.mu.Lock()
			for id, sess := range s.items {
				if sess.UpdatedAt.Before(cutoff) {
					delete(s.items, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
