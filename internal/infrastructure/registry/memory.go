package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local runs. It keeps
// the same key semantics as the Postgres store: range scans in ascending
// sort-key order, cursor-based continuation.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]map[string]Item)}
}

func (s *MemoryStore) Put(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition, ok := s.items[item.PK]
	if !ok {
		partition = make(map[string]Item)
		s.items[item.PK] = partition
	}
	partition[item.SK] = item
	return nil
}

func (s *MemoryStore) Get(_ context.Context, pk, sk string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[pk][sk]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (s *MemoryStore) Query(_ context.Context, pk, skPrefix string, limit int, cursor string) ([]Item, string, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items[pk]))
	for sk := range s.items[pk] {
		if strings.HasPrefix(sk, skPrefix) && sk > after {
			keys = append(keys, sk)
		}
	}
	sort.Strings(keys)

	truncated := limit > 0 && len(keys) > limit
	if truncated {
		keys = keys[:limit]
	}

	items := make([]Item, 0, len(keys))
	for _, sk := range keys {
		items = append(items, s.items[pk][sk])
	}

	next := ""
	if truncated {
		next = EncodeCursor(keys[len(keys)-1])
	}
	return items, next, nil
}

func (s *MemoryStore) Delete(_ context.Context, pk, sk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items[pk], sk)
	return nil
}

func (s *MemoryStore) Close() {}
