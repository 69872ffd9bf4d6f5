package memkv

import (
	"context"
	"sync"

	"github.com/trezcool/eagleeye/core/tracker"
)

// Store is a KVStore kept in memory, for tests and throwaway runs.
type Store struct {
	sync.RWMutex
	table map[string][]byte
}

var _ tracker.KVStore = (*Store)(nil) // interface compliance check

func Open() *Store {
	return &Store{table: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.RLock()
	defer s.RUnlock()

	val, ok := s.table[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.Lock()
	defer s.Unlock()

	s.table[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.table, key)
	return nil
}
