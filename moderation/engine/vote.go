package engine

import (
	"context"
	"fmt"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/countstore"
	"github.com/Agathx/climact/moderation/itemstore"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// CastVote records one community vote on a report under review. The
// duplicate check and the counter increment happen inside a single store
// transaction, so two voters (or one retried request) racing on the same
// item can never double count.
//
// The consensus rule is deliberately asymmetric: enough upvotes approve the
// report, but a downvote majority only leaves it waiting for an authority.
// Rejection always requires a human with a privileged role.
func (eng *Engine) CastVote(ctx context.Context, itemID, voterDID, direction string) (*itemstore.Item, error) {
	if voterDID == "" {
		return nil, fmt.Errorf("%w: missing voter", ErrValidation)
	}
	if direction != DirectionUp && direction != DirectionDown {
		return nil, fmt.Errorf("%w: bad vote direction %q", ErrValidation, direction)
	}

	current, err := eng.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	// anonymous reports are reviewed only by privileged roles
	if current.Kind == itemstore.KindAnonymousReport {
		role, err := eng.actorRole(ctx, voterDID)
		if err != nil {
			return nil, err
		}
		if !privilegedRole(role) {
			return nil, fmt.Errorf("%w: anonymous report review requires admin or civil_defense", ErrPermissionDenied)
		}
	}

	threshold := eng.voteThreshold()
	approveUp := eng.approveUpvotes()

	transitioned := false
	item, err := eng.Store.UpdateItem(ctx, itemID, func(it *itemstore.Item) error {
		if it.Decision != nil {
			return ErrAlreadyDecided
		}
		if it.Kind == itemstore.KindChatMessage {
			return fmt.Errorf("%w: chat messages take abuse reports, not votes", ErrInvalidState)
		}
		if it.Status != itemstore.StatusCommunityReview {
			return fmt.Errorf("%w: item is %s", ErrInvalidState, it.Status)
		}
		if it.Consensus == nil {
			it.Consensus = &itemstore.Consensus{}
		}
		if it.Consensus.HasVoted(voterDID) {
			return ErrAlreadyVoted
		}
		it.Consensus.VoterDIDs = append(it.Consensus.VoterDIDs, voterDID)
		if direction == DirectionUp {
			it.Consensus.Upvotes++
		} else {
			it.Consensus.Downvotes++
		}

		total := it.Consensus.Upvotes + it.Consensus.Downvotes
		if total >= threshold && it.Consensus.Upvotes > it.Consensus.Downvotes && it.Consensus.Upvotes >= approveUp {
			it.Status = itemstore.StatusApproved
			transitioned = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	votesCastCount.WithLabelValues(direction).Inc()
	eng.logger().Info("vote cast", "itemID", itemID, "direction", direction,
		"upvotes", item.Consensus.Upvotes, "downvotes", item.Consensus.Downvotes)

	if transitioned {
		transitionCount.WithLabelValues(item.Status, auditstore.SourceCommunity).Inc()
		eng.recordAudit(ctx, &auditstore.Entry{
			ItemID:   item.ID,
			Source:   auditstore.SourceCommunity,
			Decision: item.Status,
			Reasons: []string{fmt.Sprintf("community approval: %d upvotes of %d votes",
				item.Consensus.Upvotes, item.Consensus.Upvotes+item.Consensus.Downvotes)},
		})
		eng.purgeStatusCache(ctx, item)
		eng.maybeEscalate(ctx, item, nil)
	}
	return item, nil
}

// CastReport files an abuse report against a chat message. Like votes, one
// identity counts once, enforced atomically. Enough distinct reporters hide
// the message no matter what the automated scorer said, and responders get
// an escalation event.
func (eng *Engine) CastReport(ctx context.Context, itemID, reporterDID string) (*itemstore.Item, error) {
	if reporterDID == "" {
		return nil, fmt.Errorf("%w: missing reporter", ErrValidation)
	}

	quota := eng.Config.ReportQuotaDay
	if quota > 0 && eng.Counters != nil {
		filed, err := eng.Counters.GetCount(ctx, "abuse-reports", reporterDID, countstore.PeriodDay)
		if err != nil {
			eng.logger().Warn("report quota read failed", "err", err)
		} else if filed >= quota {
			return nil, fmt.Errorf("%w: %d abuse reports today", ErrRateLimited, filed)
		}
	}

	hideCount := eng.reportHideCount()
	transitioned := false
	item, err := eng.Store.UpdateItem(ctx, itemID, func(it *itemstore.Item) error {
		if it.Decision != nil {
			return ErrAlreadyDecided
		}
		if it.Terminal() {
			return fmt.Errorf("%w: item is %s", ErrInvalidState, it.Status)
		}
		if it.Kind != itemstore.KindChatMessage {
			return fmt.Errorf("%w: abuse reports apply to chat messages", ErrInvalidState)
		}
		if it.Consensus == nil {
			it.Consensus = &itemstore.Consensus{}
		}
		if it.Consensus.HasReported(reporterDID) {
			return ErrAlreadyVoted
		}
		it.Consensus.ReporterDIDs = append(it.Consensus.ReporterDIDs, reporterDID)
		it.Consensus.ReportCount++

		if it.Consensus.ReportCount >= hideCount && it.Status != itemstore.StatusHidden {
			it.Status = itemstore.StatusHidden
			transitioned = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reportsFiledCount.Inc()
	if eng.Counters != nil {
		if err := eng.Counters.Increment(ctx, "abuse-reports", reporterDID); err != nil {
			eng.logger().Warn("report counter increment failed", "err", err)
		}
	}
	eng.logger().Info("abuse report filed", "itemID", itemID, "reportCount", item.Consensus.ReportCount)

	if transitioned {
		transitionCount.WithLabelValues(item.Status, auditstore.SourceCommunity).Inc()
		eng.addFlag(ctx, item.ID, "report-volume-hidden")
		reasons := []string{fmt.Sprintf("report volume threshold reached (%d reports)", item.Consensus.ReportCount)}
		eng.recordAudit(ctx, &auditstore.Entry{
			ItemID:   item.ID,
			Source:   auditstore.SourceCommunity,
			Decision: item.Status,
			Reasons:  reasons,
		})
		eng.purgeStatusCache(ctx, item)
		eng.emitEvent(ctx, &Event{
			ItemID:   item.ID,
			Kind:     EventMessageReportVolume,
			Decision: item.Status,
			Reasons:  reasons,
		})
	}
	return item, nil
}

func (eng *Engine) voteThreshold() int {
	if eng.Config.VoteThreshold > 0 {
		return eng.Config.VoteThreshold
	}
	return 5
}

func (eng *Engine) approveUpvotes() int {
	if eng.Config.ApproveUpvotes > 0 {
		return eng.Config.ApproveUpvotes
	}
	return 3
}
