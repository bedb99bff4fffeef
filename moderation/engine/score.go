package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/itemstore"
	"github.com/Agathx/climact/moderation/scorer"
)

// ScoreItem runs the content scorer for an item and applies the result. A
// scorer fault is resolved by the fail-open rule: the item is routed toward
// human review instead of being stuck, and the fault lands in the audit
// trail. ScoreItem therefore never returns a scoring error, only store
// errors.
func (eng *Engine) ScoreItem(ctx context.Context, itemID string) error {
	start := time.Now()
	defer func() {
		scoringDuration.Observe(time.Since(start).Seconds())
	}()

	item, err := eng.Store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Terminal() {
		discardedOpCount.WithLabelValues("score").Inc()
		eng.logger().Info("discarding scoring request for terminal item", "itemID", itemID, "status", item.Status)
		return nil
	}

	res, err := eng.scoreContent(item)
	if err != nil {
		scoringFailureCount.Inc()
		eng.logger().Error("scorer fault, failing open", "err", err, "itemID", itemID)
		return eng.failOpen(ctx, item, err)
	}
	return eng.ApplyScore(ctx, itemID, res)
}

// scoreContent wraps the scorer call with panic recovery, like rule
// execution in an HTTP server: a bad lexicon config must not take the
// pipeline down with it.
func (eng *Engine) scoreContent(item *itemstore.Item) (res scorer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panic: %v", r)
		}
	}()
	policy := eng.policyFor(item.Kind)
	res = policy.Score(item.Content, item.Category)
	return res, nil
}

// ApplyScore stores a scoring result and applies the automated decision
// rule. It is idempotent and safe under at-least-once delivery: a retried or
// late trigger against a terminal item is logged and discarded, and a
// re-score overwrites the previous scoring wholesale while the item is still
// in play.
func (eng *Engine) ApplyScore(ctx context.Context, itemID string, res scorer.Result) error {
	policyReport := &eng.ReportPolicy

	item, err := eng.Store.UpdateItem(ctx, itemID, func(it *itemstore.Item) error {
		if it.Terminal() {
			return errDiscardTerminal
		}
		it.Scoring = &itemstore.ScoreInfo{
			Score:          res.Score,
			Recommendation: res.Recommendation,
			Reasons:        res.Reasons,
			ScoredAt:       time.Now().UTC(),
		}

		if it.Kind == itemstore.KindChatMessage {
			switch res.Recommendation {
			case scorer.RecommendBlock:
				it.Status = itemstore.StatusBlocked
			case scorer.RecommendHide:
				it.Status = itemstore.StatusHidden
			default:
				// community report volume outranks an automated allow
				if it.Consensus != nil && it.Consensus.ReportCount >= eng.reportHideCount() {
					it.Status = itemstore.StatusHidden
				} else {
					it.Status = itemstore.StatusActive
				}
			}
			return nil
		}

		// reports: both the recommendation and the raw score must agree
		// before an automated terminal decision
		switch {
		case res.Recommendation == scorer.RecommendApprove && res.Score >= policyReport.HighMin:
			it.Status = itemstore.StatusApproved
		case res.Recommendation == scorer.RecommendReject && res.Score <= policyReport.LowMax:
			it.Status = itemstore.StatusRejected
		default:
			it.Status = itemstore.StatusCommunityReview
			// zero the tally only on first entry to review; a re-score must
			// never discard votes already cast
			if it.Consensus == nil {
				it.Consensus = &itemstore.Consensus{}
			}
		}
		return nil
	})
	if errors.Is(err, errDiscardTerminal) {
		discardedOpCount.WithLabelValues("score").Inc()
		eng.logger().Info("discarding score for terminal item", "itemID", itemID)
		return nil
	} else if err != nil {
		return err
	}

	channel := eng.policyFor(item.Kind).Channel
	scoresAppliedCount.WithLabelValues(channel, res.Recommendation).Inc()
	transitionCount.WithLabelValues(item.Status, auditstore.SourceAutomated).Inc()
	eng.logger().Info("score applied", "itemID", itemID, "score", res.Score, "recommendation", res.Recommendation, "status", item.Status)

	conf := res.Score
	eng.recordAudit(ctx, &auditstore.Entry{
		ItemID:     item.ID,
		Source:     auditstore.SourceAutomated,
		Decision:   item.Status,
		Confidence: &conf,
		Reasons:    res.Reasons,
	})
	eng.purgeStatusCache(ctx, item)
	eng.maybeEscalate(ctx, item, res.Reasons)
	return nil
}

// failOpen routes an item that could not be scored toward human review:
// reports go to the community queue, chat messages stay visible but flagged.
// The item is never left stuck on a scorer fault.
func (eng *Engine) failOpen(ctx context.Context, item *itemstore.Item, cause error) error {
	updated, err := eng.Store.UpdateItem(ctx, item.ID, func(it *itemstore.Item) error {
		if it.Terminal() {
			return errDiscardTerminal
		}
		if it.Kind == itemstore.KindChatMessage {
			if it.Consensus == nil || it.Consensus.ReportCount < eng.reportHideCount() {
				it.Status = itemstore.StatusActive
			}
			return nil
		}
		it.Status = itemstore.StatusCommunityReview
		if it.Consensus == nil {
			it.Consensus = &itemstore.Consensus{}
		}
		return nil
	})
	if errors.Is(err, errDiscardTerminal) {
		return nil
	} else if err != nil {
		return err
	}

	eng.addFlag(ctx, item.ID, "scorer-error")
	transitionCount.WithLabelValues(updated.Status, auditstore.SourceAutomated).Inc()
	eng.recordAudit(ctx, &auditstore.Entry{
		ItemID:   item.ID,
		Source:   auditstore.SourceAutomated,
		Decision: "error",
		Reasons:  []string{cause.Error()},
	})
	eng.purgeStatusCache(ctx, updated)
	return nil
}

// maybeEscalate emits notifier events for the transitions responders care
// about: critical reports reaching approval, and blocked chat messages.
func (eng *Engine) maybeEscalate(ctx context.Context, item *itemstore.Item, reasons []string) {
	switch {
	case item.Kind != itemstore.KindChatMessage && item.Status == itemstore.StatusApproved &&
		(item.Severity == "critical" || item.Severity == "high"):
		eng.emitEvent(ctx, &Event{
			ItemID:   item.ID,
			Kind:     EventCriticalReport,
			Severity: item.Severity,
			Decision: item.Status,
			Reasons:  reasons,
		})
	case item.Kind == itemstore.KindChatMessage && item.Status == itemstore.StatusBlocked:
		eng.emitEvent(ctx, &Event{
			ItemID:   item.ID,
			Kind:     EventMessageBlocked,
			Decision: item.Status,
			Reasons:  reasons,
		})
	}
}

func (eng *Engine) reportHideCount() int {
	if eng.Config.ReportHideCount > 0 {
		return eng.Config.ReportHideCount
	}
	return 3
}

// RunScoringWorker drains the scoring queue. Run it in a goroutine when the
// engine is configured for async scoring; it exits when the context is
// canceled.
func (eng *Engine) RunScoringWorker(ctx context.Context) error {
	limit := eng.Config.ScoringRateLimit
	if limit <= 0 {
		limit = 20
	}
	limiter := rate.NewLimiter(rate.Limit(limit), 1)
	queue := eng.scoringQueue()
	for {
		select {
		case <-ctx.Done():
			return nil
		case itemID := <-queue:
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := eng.ScoreItem(ctx, itemID); err != nil {
				eng.logger().Error("async scoring failed", "err", err, "itemID", itemID)
			}
		}
	}
}
