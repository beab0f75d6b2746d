package conversation

import (
	"context"
	"sync"
)

// Store keeps message nodes by id. Absence is a normal result of Get, not an
// error. Implementations must store and hand out copies, so that callers
// cannot mutate stored state after the fact.
type Store interface {
	Get(ctx context.Context, id string) (*Message, bool)
	// Upsert stores msg under msg.ID, replacing any previous entry.
	Upsert(ctx context.Context, msg *Message)
	Clear(ctx context.Context)
}

// MemoryStore is the in-process Store. It lives only as long as the process.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Message
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*Message),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (s *MemoryStore) Upsert(_ context.Context, msg *Message) {
	if msg == nil {
		return
	}
	c := msg.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[c.ID] = c
}

func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*Message)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
