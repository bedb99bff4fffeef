package auditstore

import (
	"context"
	"time"
)

// Decision sources. Every pipeline transition is attributed to exactly one.
const (
	SourceAutomated = "automated"
	SourceCommunity = "community"
	SourceAuthority = "authority"
)

// Entry is one append-only audit record: who (or what) decided, what was
// decided, and why. Entries are never mutated or deleted; they are the system
// of record for how an item reached its current status.
type Entry struct {
	ID         uint64
	ItemID     string
	Source     string
	Decision   string
	Confidence *float64
	Reasons    []string
	CreatedAt  time.Time
}

// AuditStore is an append-only sink. Append failures must be tolerated by
// callers (best-effort): a failed audit write never rolls back the state
// transition that triggered it, but should be logged and counted.
type AuditStore interface {
	Append(ctx context.Context, entry *Entry) error
	ListByItem(ctx context.Context, itemID string) ([]*Entry, error)
}
