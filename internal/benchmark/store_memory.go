package benchmark

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps runs in process memory.
// Data survives across requests but not process restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Run
}

// NewMemoryStore creates an empty in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*Run),
	}
}

// Save stores a new run.
func (s *MemoryStore) Save(_ context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	c, err := cloneRun(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return fmt.Errorf("run already exists: %s", c.ID)
	}
	s.items[c.ID] = c
	return nil
}

// Get retrieves one run by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	r, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(r)
}

// List returns runs ordered by created_at desc, id desc.
func (s *MemoryStore) List(_ context.Context, limit int, after string) ([]*Run, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	all := make([]*Run, 0, len(s.items))
	for _, r := range s.items {
		c, err := cloneRun(r)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		all = append(all, c)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt == all[j].CreatedAt {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt > all[j].CreatedAt
	})

	start := 0
	if after != "" {
		idx := -1
		for i := range all {
			if all[i].ID == after {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, ErrNotFound
		}
		start = idx + 1
	}

	if start >= len(all) {
		return []*Run{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// Close releases resources (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
