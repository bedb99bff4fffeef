package engine

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Agathx/climact/moderation/countstore"
	"github.com/Agathx/climact/moderation/itemstore"
)

type SubmitParams struct {
	Kind      string
	AuthorDID string
	Content   string
	Category  string
	Severity  string
}

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// mintProtocolToken returns an opaque, unguessable status-lookup handle for
// anonymous reports. There is deliberately no reverse mapping from the token
// to any identity.
func mintProtocolToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("minting protocol token: %w", err)
	}
	return strings.ToLower(tokenEncoding.EncodeToString(buf)), nil
}

// Submit validates and creates a new item, then requests scoring: inline when
// the engine is configured synchronous, otherwise through the scoring queue.
// The queue is drained by RunScoringWorker with at-least-once semantics;
// ApplyScore tolerates redelivery.
//
// For anonymous reports the returned item carries the freshly minted protocol
// token; this is the only time the caller ever sees it.
func (eng *Engine) Submit(ctx context.Context, params SubmitParams) (*itemstore.Item, error) {
	if err := validateSubmit(&params); err != nil {
		return nil, err
	}

	quota := eng.Config.SubmissionQuotaHour
	if quota > 0 && eng.Counters != nil && params.AuthorDID != "" {
		sent, err := eng.Counters.GetCount(ctx, "submissions", params.AuthorDID, countstore.PeriodHour)
		if err != nil {
			eng.logger().Warn("submission quota read failed", "err", err)
		} else if sent >= quota {
			return nil, fmt.Errorf("%w: %d submissions this hour", ErrRateLimited, sent)
		}
	}

	now := time.Now().UTC()
	item := &itemstore.Item{
		ID:        uuid.NewString(),
		Kind:      params.Kind,
		AuthorDID: params.AuthorDID,
		Content:   params.Content,
		Category:  params.Category,
		Severity:  params.Severity,
		Status:    itemstore.StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if params.Kind == itemstore.KindAnonymousReport {
		token, err := mintProtocolToken()
		if err != nil {
			return nil, err
		}
		item.ProtocolToken = token
	}

	if err := eng.Store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("creating moderation item: %w", err)
	}
	itemsSubmittedCount.WithLabelValues(item.Kind).Inc()
	eng.logger().Info("item submitted", "itemID", item.ID, "kind", item.Kind, "category", item.Category)

	if eng.Counters != nil && params.AuthorDID != "" {
		if err := eng.Counters.Increment(ctx, "submissions", params.AuthorDID); err != nil {
			eng.logger().Warn("submission counter increment failed", "err", err)
		}
	}

	if eng.Config.AsyncScoring {
		select {
		case eng.scoringQueue() <- item.ID:
			eng.markScoring(ctx, item.ID)
		default:
			// queue full; score inline rather than dropping the request
			eng.logger().Warn("scoring queue full, scoring inline", "itemID", item.ID)
			if err := eng.ScoreItem(ctx, item.ID); err != nil {
				eng.logger().Error("inline scoring failed", "err", err, "itemID", item.ID)
			}
		}
	} else {
		if err := eng.ScoreItem(ctx, item.ID); err != nil {
			eng.logger().Error("scoring failed", "err", err, "itemID", item.ID)
		}
	}

	// re-read so the caller sees the post-scoring status in the synchronous case
	final, err := eng.Store.GetItem(ctx, item.ID)
	if err != nil {
		return item, nil
	}
	return final, nil
}

// markScoring flips a freshly submitted item into the scoring state once its
// trigger is queued. Best-effort: if the worker already raced ahead (or an
// authority already decided), the current status stands.
func (eng *Engine) markScoring(ctx context.Context, itemID string) {
	_, err := eng.Store.UpdateItem(ctx, itemID, func(it *itemstore.Item) error {
		if it.Status == itemstore.StatusSubmitted {
			it.Status = itemstore.StatusScoring
		}
		return nil
	})
	if err != nil {
		eng.logger().Warn("marking item as scoring failed", "err", err, "itemID", itemID)
	}
}

func validateSubmit(params *SubmitParams) error {
	switch params.Kind {
	case itemstore.KindReport, itemstore.KindChatMessage, itemstore.KindAnonymousReport:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, params.Kind)
	}
	if strings.TrimSpace(params.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrValidation)
	}
	switch params.Kind {
	case itemstore.KindAnonymousReport:
		// the anonymity invariant starts at intake: never accept an identity
		if params.AuthorDID != "" {
			return fmt.Errorf("%w: anonymous reports must not carry an author", ErrValidation)
		}
		if params.Category == "" {
			return fmt.Errorf("%w: missing category", ErrValidation)
		}
	case itemstore.KindReport:
		if params.AuthorDID == "" {
			return fmt.Errorf("%w: missing author", ErrValidation)
		}
		if params.Category == "" {
			return fmt.Errorf("%w: missing category", ErrValidation)
		}
	case itemstore.KindChatMessage:
		if params.AuthorDID == "" {
			return fmt.Errorf("%w: missing author", ErrValidation)
		}
	}
	return nil
}
