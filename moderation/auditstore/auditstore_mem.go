package auditstore

import (
	"context"
	"sync"
	"time"
)

type MemAuditStore struct {
	lk      sync.Mutex
	nextID  uint64
	entries []*Entry
}

var _ AuditStore = (*MemAuditStore)(nil)

func NewMemAuditStore() *MemAuditStore {
	return &MemAuditStore{nextID: 1}
}

func (s *MemAuditStore) Append(ctx context.Context, entry *Entry) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	cpy := *entry
	cpy.ID = s.nextID
	cpy.Reasons = append([]string(nil), entry.Reasons...)
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = time.Now().UTC()
	}
	s.nextID++
	s.entries = append(s.entries, &cpy)
	entry.ID = cpy.ID
	return nil
}

func (s *MemAuditStore) ListByItem(ctx context.Context, itemID string) ([]*Entry, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.ItemID == itemID {
			cpy := *e
			cpy.Reasons = append([]string(nil), e.Reasons...)
			out = append(out, &cpy)
		}
	}
	return out, nil
}
