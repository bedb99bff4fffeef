package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/cachestore"
	"github.com/Agathx/climact/moderation/countstore"
	"github.com/Agathx/climact/moderation/flagstore"
	"github.com/Agathx/climact/moderation/itemstore"
	"github.com/Agathx/climact/moderation/scorer"
)

// CollectingNotifier stores events in memory for test assertions.
type CollectingNotifier struct {
	lk     sync.Mutex
	events []*Event
}

var _ Notifier = (*CollectingNotifier)(nil)

func (n *CollectingNotifier) Send(ctx context.Context, evt *Event) error {
	n.lk.Lock()
	defer n.lk.Unlock()
	cpy := *evt
	n.events = append(n.events, &cpy)
	return nil
}

func (n *CollectingNotifier) Events() []*Event {
	n.lk.Lock()
	defer n.lk.Unlock()
	return append([]*Event(nil), n.events...)
}

// EngineTestFixture returns a fully wired engine on in-memory stores, with
// synchronous scoring and a couple of privileged reviewers. Intentionally
// exported for use in other packages' tests.
func EngineTestFixture() *Engine {
	roles := NewStaticRoleDirectory()
	roles.Insert("did:plc:admin1", RoleAdmin)
	roles.Insert("did:plc:defesa1", RoleCivilDefense)

	return &Engine{
		Logger:       slog.Default(),
		Store:        itemstore.NewMemItemStore(),
		Audit:        auditstore.NewMemAuditStore(),
		Counters:     countstore.NewMemCountStore(),
		Cache:        cachestore.NewMemCacheStore(1000, time.Minute),
		Flags:        flagstore.NewMemFlagStore(),
		Roles:        roles,
		Notifier:     &CollectingNotifier{},
		ReportPolicy: scorer.DefaultReportPolicy(),
		ChatPolicy:   scorer.DefaultChatPolicy(),
		Config:       DefaultEngineConfig(),
	}
}
