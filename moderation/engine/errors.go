package engine

import (
	"errors"
)

// Typed pipeline errors. AlreadyVoted and AlreadyDecided are idempotent
// rejections (the system is healthy, the caller just repeated itself);
// InvalidState covers any operation attempted against a terminal item.
// Scoring faults never surface here: the engine resolves them internally via
// the fail-open rule.
var (
	ErrValidation       = errors.New("invalid moderation input")
	ErrAlreadyVoted     = errors.New("identity already voted on this item")
	ErrAlreadyDecided   = errors.New("item already has an authority decision")
	ErrPermissionDenied = errors.New("actor lacks the role required for this operation")
	ErrInvalidState     = errors.New("operation not allowed in the item's current state")
	ErrRateLimited      = errors.New("quota exceeded")
)

// internal sentinel: operation arrived after a terminal transition and should
// be logged and discarded rather than surfaced as a failure
var errDiscardTerminal = errors.New("item is terminal, discarding operation")
