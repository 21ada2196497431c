package archive

import (
	"context"
	"errors"
	"sync"

	"familynest/internal/domain/story"
)

// MemoryStore keeps stories in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	stories map[string]*story.Story
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stories: make(map[string]*story.Story)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*story.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *story.Story) error {
	if s == nil || s.ID == "" {
		return errors.New("story must have an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stories[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.stories[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*story.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*story.Story, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.stories[id].Clone())
	}
	return out, nil
}
