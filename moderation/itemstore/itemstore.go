package itemstore

import (
	"context"
	"errors"
	"time"
)

// Kinds of content that move through the moderation pipeline.
const (
	KindReport          = "report"
	KindChatMessage     = "chat_message"
	KindAnonymousReport = "anonymous_report"
)

// Item lifecycle statuses. Reports move submitted -> scoring ->
// {approved, rejected, community_review}; chat messages resolve to
// active/hidden/blocked instead.
const (
	StatusSubmitted       = "submitted"
	StatusScoring         = "scoring"
	StatusCommunityReview = "community_review"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusActive          = "active"
	StatusHidden          = "hidden"
	StatusBlocked         = "blocked"
)

var ErrNotFound = errors.New("moderation item not found")

// ScoreInfo is the outcome of one automated scoring attempt. A re-score
// replaces the whole struct; fields are never merged across attempts.
type ScoreInfo struct {
	Score          float64   `json:"score"`
	Recommendation string    `json:"recommendation"`
	Reasons        []string  `json:"reasons"`
	ScoredAt       time.Time `json:"scoredAt"`
}

// Consensus tracks community voting state. Present only once an item has
// entered community review (reports) or started collecting abuse reports
// (chat messages).
type Consensus struct {
	Upvotes      int      `json:"upvotes"`
	Downvotes    int      `json:"downvotes"`
	ReportCount  int      `json:"reportCount"`
	VoterDIDs    []string `json:"voterDids"`
	ReporterDIDs []string `json:"reporterDids"`
}

func (c *Consensus) HasVoted(did string) bool {
	for _, v := range c.VoterDIDs {
		if v == did {
			return true
		}
	}
	return false
}

func (c *Consensus) HasReported(did string) bool {
	for _, v := range c.ReporterDIDs {
		if v == did {
			return true
		}
	}
	return false
}

// AuthorityDecision records a privileged override. Once set the item is
// frozen: no automated or community transition may touch it again.
type AuthorityDecision struct {
	ReviewerDID string    `json:"reviewerDid"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason,omitempty"`
	DecidedAt   time.Time `json:"decidedAt"`
}

// Item is the unit under moderation: an incident report, a chat message, or
// an anonymous report. Anonymous items carry an empty AuthorDID and are only
// reachable from the outside via their protocol token.
type Item struct {
	ID        string
	Kind      string
	AuthorDID string
	Content   string
	Category  string
	Severity  string
	Status    string

	// Opaque lookup handle, set only for anonymous reports.
	ProtocolToken string

	Scoring   *ScoreInfo
	Consensus *Consensus
	Decision  *AuthorityDecision

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the item's state machine is frozen. Terminal
// states are absorbing: the first writer wins and everything after becomes a
// rejected no-op.
func (i *Item) Terminal() bool {
	if i.Decision != nil {
		return true
	}
	switch i.Status {
	case StatusApproved, StatusRejected, StatusBlocked:
		return true
	}
	return false
}

// ItemStore is the persistence boundary for moderation items. UpdateItem must
// provide transactional check-then-write semantics: the mutate callback runs
// against the current row under a lock (or inside a serializable
// transaction), so membership checks and counter increments observe and write
// a single consistent snapshot. An error returned from mutate aborts the
// update and is returned unwrapped.
type ItemStore interface {
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	GetItemByToken(ctx context.Context, token string) (*Item, error)
	UpdateItem(ctx context.Context, id string, mutate func(*Item) error) (*Item, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*Item, error)
}
