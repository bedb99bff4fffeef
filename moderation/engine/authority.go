package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/itemstore"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// AuthorityDecide lets a privileged reviewer force a terminal outcome from
// any non-terminal state, short-circuiting scoring and community review.
// The first authority decision wins and freezes the item: later votes,
// reports, and scoring retries are all rejected or discarded.
func (eng *Engine) AuthorityDecide(ctx context.Context, itemID, reviewerDID, decision, reason string) (*itemstore.Item, error) {
	if reviewerDID == "" {
		return nil, fmt.Errorf("%w: missing reviewer", ErrValidation)
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("%w: bad decision %q", ErrValidation, decision)
	}

	role, err := eng.actorRole(ctx, reviewerDID)
	if err != nil {
		return nil, err
	}
	if !privilegedRole(role) {
		return nil, fmt.Errorf("%w: role %q may not decide", ErrPermissionDenied, role)
	}

	item, err := eng.Store.UpdateItem(ctx, itemID, func(it *itemstore.Item) error {
		if it.Decision != nil {
			return ErrAlreadyDecided
		}
		if it.Terminal() {
			return fmt.Errorf("%w: item already resolved as %s", ErrInvalidState, it.Status)
		}
		it.Decision = &itemstore.AuthorityDecision{
			ReviewerDID: reviewerDID,
			Decision:    decision,
			Reason:      reason,
			DecidedAt:   time.Now().UTC(),
		}
		if it.Kind == itemstore.KindChatMessage {
			if decision == DecisionApprove {
				it.Status = itemstore.StatusActive
			} else {
				it.Status = itemstore.StatusBlocked
			}
		} else {
			if decision == DecisionApprove {
				it.Status = itemstore.StatusApproved
			} else {
				it.Status = itemstore.StatusRejected
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionCount.WithLabelValues(item.Status, auditstore.SourceAuthority).Inc()
	eng.logger().Info("authority decision applied", "itemID", itemID, "decision", decision, "status", item.Status)

	reasons := []string{reason}
	if reason == "" {
		reasons = []string{"(no reason given)"}
	}
	eng.recordAudit(ctx, &auditstore.Entry{
		ItemID:   item.ID,
		Source:   auditstore.SourceAuthority,
		Decision: item.Status,
		Reasons:  reasons,
	})
	eng.purgeStatusCache(ctx, item)
	eng.maybeEscalate(ctx, item, reasons)
	return item, nil
}
