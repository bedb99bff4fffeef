package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/cachestore"
	"github.com/Agathx/climact/moderation/countstore"
	"github.com/Agathx/climact/moderation/flagstore"
	"github.com/Agathx/climact/moderation/itemstore"
	"github.com/Agathx/climact/moderation/scorer"
)

// Engine is the moderation pipeline orchestrator. It owns every status
// transition of a submitted item: automated scoring, community consensus,
// and authority overrides all funnel through here, and each transition is
// recorded in the audit store.
//
// Terminal states are absorbing. Whichever of the automated, community, or
// authority paths reaches one first wins; everything arriving later is
// rejected (votes) or logged and discarded (scoring retries).
type Engine struct {
	Logger   *slog.Logger
	Store    itemstore.ItemStore
	Audit    auditstore.AuditStore
	Counters countstore.CountStore
	Cache    cachestore.CacheStore
	Flags    flagstore.FlagStore
	Roles    RoleDirectory
	// optional; nil disables escalation events
	Notifier Notifier

	ReportPolicy scorer.Policy
	ChatPolicy   scorer.Policy

	Config EngineConfig

	queueOnce sync.Once
	queue     chan string
}

type EngineConfig struct {
	// score asynchronously via RunScoringWorker instead of inline during Submit
	AsyncScoring     bool
	QueueSize        int
	ScoringRateLimit float64

	// community consensus thresholds
	VoteThreshold   int
	ApproveUpvotes  int
	ReportHideCount int

	// quotas (0 disables)
	SubmissionQuotaHour int
	ReportQuotaDay      int
	EscalationQuotaDay  int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		QueueSize:           1024,
		ScoringRateLimit:    20,
		VoteThreshold:       5,
		ApproveUpvotes:      3,
		ReportHideCount:     3,
		SubmissionQuotaHour: 30,
		ReportQuotaDay:      50,
		EscalationQuotaDay:  100,
	}
}

func (eng *Engine) logger() *slog.Logger {
	if eng.Logger == nil {
		return slog.Default()
	}
	return eng.Logger
}

func (eng *Engine) policyFor(kind string) *scorer.Policy {
	if kind == itemstore.KindChatMessage {
		return &eng.ChatPolicy
	}
	return &eng.ReportPolicy
}

func (eng *Engine) scoringQueue() chan string {
	eng.queueOnce.Do(func() {
		size := eng.Config.QueueSize
		if size <= 0 {
			size = 1024
		}
		eng.queue = make(chan string, size)
	})
	return eng.queue
}

// recordAudit appends an audit entry best-effort: a failed write must never
// roll back the state transition it describes, but it has to stay visible to
// operators, so failures are logged and counted.
func (eng *Engine) recordAudit(ctx context.Context, entry *auditstore.Entry) {
	if err := eng.Audit.Append(ctx, entry); err != nil {
		auditWriteErrorCount.Inc()
		eng.logger().Error("audit log write failed", "err", err, "itemID", entry.ItemID, "source", entry.Source, "decision", entry.Decision)
	}
}

// addFlag is best-effort in the same way recordAudit is.
func (eng *Engine) addFlag(ctx context.Context, itemID string, flags ...string) {
	if eng.Flags == nil {
		return
	}
	if err := eng.Flags.Add(ctx, itemID, flags); err != nil {
		eng.logger().Error("flagstore write failed", "err", err, "itemID", itemID, "flags", flags)
	}
}

func (eng *Engine) purgeStatusCache(ctx context.Context, item *itemstore.Item) {
	if eng.Cache == nil {
		return
	}
	if err := eng.Cache.Purge(ctx, "status", item.ID); err != nil {
		eng.logger().Warn("status cache purge failed", "err", err, "itemID", item.ID)
	}
	if item.ProtocolToken != "" {
		if err := eng.Cache.Purge(ctx, "anonstatus", item.ProtocolToken); err != nil {
			eng.logger().Warn("status cache purge failed", "err", err, "itemID", item.ID)
		}
	}
}
