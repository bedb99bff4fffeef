package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/itemstore"
)

// StatusView is the public status surface of an item. It deliberately
// carries no identity fields at all: the same shape serves authenticated
// lookups and anonymous protocol-token lookups.
type StatusView struct {
	ID             string    `json:"id,omitempty"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	Category       string    `json:"category,omitempty"`
	Severity       string    `json:"severity,omitempty"`
	Score          *float64  `json:"score,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	Decided        bool      `json:"decided"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func statusView(item *itemstore.Item) *StatusView {
	view := &StatusView{
		ID:        item.ID,
		Kind:      item.Kind,
		Status:    item.Status,
		Category:  item.Category,
		Severity:  item.Severity,
		Decided:   item.Decision != nil,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if item.Scoring != nil {
		score := item.Scoring.Score
		view.Score = &score
		view.Recommendation = item.Scoring.Recommendation
	}
	return view
}

// LookupStatus returns the public status of an item by its ID.
func (eng *Engine) LookupStatus(ctx context.Context, itemID string) (*StatusView, error) {
	if view := eng.cachedView(ctx, "status", itemID); view != nil {
		return view, nil
	}
	item, err := eng.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	view := statusView(item)
	eng.cacheView(ctx, "status", itemID, view)
	return view, nil
}

// LookupByToken resolves an anonymous report's status through its protocol
// token. The view omits even the internal item ID: the token is the only
// handle an anonymous submitter ever holds, and nothing in the payload can
// be joined back to an identity.
func (eng *Engine) LookupByToken(ctx context.Context, token string) (*StatusView, error) {
	if view := eng.cachedView(ctx, "anonstatus", token); view != nil {
		return view, nil
	}
	item, err := eng.Store.GetItemByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	view := statusView(item)
	view.ID = ""
	eng.cacheView(ctx, "anonstatus", token, view)
	return view, nil
}

// GetAuditTrail returns every decision recorded for an item, oldest first.
func (eng *Engine) GetAuditTrail(ctx context.Context, itemID string) ([]*auditstore.Entry, error) {
	if _, err := eng.Store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return eng.Audit.ListByItem(ctx, itemID)
}

// ListPendingReview returns the authority worklist: items waiting in
// community review, oldest first.
func (eng *Engine) ListPendingReview(ctx context.Context, limit int) ([]*itemstore.Item, error) {
	return eng.Store.ListByStatus(ctx, itemstore.StatusCommunityReview, limit)
}

func (eng *Engine) cachedView(ctx context.Context, name, key string) *StatusView {
	if eng.Cache == nil {
		return nil
	}
	raw, err := eng.Cache.Get(ctx, name, key)
	if err != nil || raw == "" {
		return nil
	}
	var view StatusView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil
	}
	return &view
}

func (eng *Engine) cacheView(ctx context.Context, name, key string, view *StatusView) {
	if eng.Cache == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := eng.Cache.Set(ctx, name, key, string(raw)); err != nil {
		eng.logger().Warn("status cache write failed", "err", err, "key", key)
	}
}
