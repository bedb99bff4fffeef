package flagstore

import (
	"context"
	"sort"
	"sync"
)

type MemFlagStore struct {
	lk   sync.Mutex
	data map[string]map[string]bool
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		data: make(map[string]map[string]bool),
	}
}

func (s *MemFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []string{}
	for f := range s.data[key] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemFlagStore) Add(ctx context.Context, key string, flags []string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	m, ok := s.data[key]
	if !ok {
		m = make(map[string]bool)
		s.data[key] = m
	}
	for _, f := range flags {
		m[f] = true
	}
	return nil
}

// does not error if flags not in set
func (s *MemFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	m, ok := s.data[key]
	if !ok {
		return nil
	}
	for _, f := range flags {
		delete(m, f)
	}
	return nil
}
