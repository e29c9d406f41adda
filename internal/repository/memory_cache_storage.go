package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
)

type memoryStore struct {
	entries map[string]*models.CachedResponse
	order   []string
}

// MemoryCacheStorage keeps named cache stores in process memory. Entries are
// returned as copies so callers never share mutable state with the store.
type MemoryCacheStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

// NewMemoryCacheStorage constructs an empty storage.
func NewMemoryCacheStorage() *MemoryCacheStorage {
	return &MemoryCacheStorage{stores: make(map[string]*memoryStore)}
}

// Match returns the entry stored under key or ErrCacheMiss.
func (s *MemoryCacheStorage) Match(_ context.Context, store, key string) (*models.CachedResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[store]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	entry, ok := st.entries[key]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return cloneEntry(entry), nil
}

// Put stores entry, opening the store on first use. Re-putting a key moves it to the newest position.
func (s *MemoryCacheStorage) Put(_ context.Context, store string, entry *models.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[store]
	if !ok {
		st = &memoryStore{entries: make(map[string]*models.CachedResponse)}
		s.stores[store] = st
	}
	if _, exists := st.entries[entry.URL]; exists {
		st.order = removeKey(st.order, entry.URL)
	}
	st.entries[entry.URL] = cloneEntry(entry)
	st.order = append(st.order, entry.URL)
	return nil
}

// Delete removes one entry.
func (s *MemoryCacheStorage) Delete(_ context.Context, store, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[store]
	if !ok {
		return nil
	}
	if _, exists := st.entries[key]; exists {
		delete(st.entries, key)
		st.order = removeKey(st.order, key)
	}
	return nil
}

// Keys lists a store's keys, oldest first.
func (s *MemoryCacheStorage) Keys(_ context.Context, store string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[store]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), st.order...), nil
}

// Stores lists every open store name in sorted order.
func (s *MemoryCacheStorage) Stores(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteStore drops a store and all its entries.
func (s *MemoryCacheStorage) DeleteStore(_ context.Context, store string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, store)
	return nil
}

func cloneEntry(e *models.CachedResponse) *models.CachedResponse {
	clone := *e
	clone.Header = e.Header.Clone()
	clone.Body = append([]byte(nil), e.Body...)
	return &clone
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
