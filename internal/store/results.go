package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/rmanoh01/neurobooth-analysis-tools/internal/frame"
)

var ErrMiss = errors.New("cache miss")

// TableStore caches downloaded result tables keyed by name.
type TableStore interface {
	Get(name string) (*frame.Frame, error)
	Set(name string, table *frame.Frame)
	Names() []string
}

// MemoryStore is a process-local TableStore. Entries live until the process
// exits or they are overwritten by a later download.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*frame.Frame
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*frame.Frame)}
}

func (s *MemoryStore) Get(name string) (*frame.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[name]
	if !ok {
		return nil, ErrMiss
	}
	return table, nil
}

func (s *MemoryStore) Set(name string, table *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = table
}

func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
