package local

import (
	"errors"
	"sync"
)

var errUnknownOp = errors.New("local backend: unknown command")

// MemoryStore is a map-backed Store. Keys are returned in insertion order,
// mirroring an index-addressable item store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
	order []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) GetItem(key string) ([]byte, bool, error) {
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) SetItem(key string, raw []byte) error {
	s.mu.Lock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = append([]byte(nil), raw...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.items = make(map[string][]byte)
	s.order = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
