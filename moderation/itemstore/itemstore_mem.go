package itemstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemItemStore is an in-memory ItemStore for tests and small deployments.
// A single mutex covers both the duplicate checks and the writes, which is
// what gives UpdateItem its atomic read-modify-write behavior here.
type MemItemStore struct {
	lk      sync.Mutex
	items   map[string]*Item
	byToken map[string]string
}

var _ ItemStore = (*MemItemStore)(nil)

func NewMemItemStore() *MemItemStore {
	return &MemItemStore{
		items:   make(map[string]*Item),
		byToken: make(map[string]string),
	}
}

func (s *MemItemStore) CreateItem(ctx context.Context, item *Item) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	cpy := copyItem(item)
	s.items[item.ID] = cpy
	if item.ProtocolToken != "" {
		s.byToken[item.ProtocolToken] = item.ID
	}
	return nil
}

func (s *MemItemStore) GetItem(ctx context.Context, id string) (*Item, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyItem(item), nil
}

func (s *MemItemStore) GetItemByToken(ctx context.Context, token string) (*Item, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyItem(item), nil
}

func (s *MemItemStore) UpdateItem(ctx context.Context, id string, mutate func(*Item) error) (*Item, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := copyItem(item)
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	s.items[id] = working
	return copyItem(working), nil
}

func (s *MemItemStore) ListByStatus(ctx context.Context, status string, limit int) ([]*Item, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []*Item
	for _, item := range s.items {
		if item.Status == status {
			out = append(out, copyItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyItem(in *Item) *Item {
	out := *in
	if in.Scoring != nil {
		sc := *in.Scoring
		sc.Reasons = append([]string(nil), in.Scoring.Reasons...)
		out.Scoring = &sc
	}
	if in.Consensus != nil {
		cs := *in.Consensus
		cs.VoterDIDs = append([]string(nil), in.Consensus.VoterDIDs...)
		cs.ReporterDIDs = append([]string(nil), in.Consensus.ReporterDIDs...)
		out.Consensus = &cs
	}
	if in.Decision != nil {
		d := *in.Decision
		out.Decision = &d
	}
	return &out
}
