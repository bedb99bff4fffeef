// Package flagstore records private operational flags on moderation items,
// like "scorer-error" or "report-volume-hidden". Flags are internal breadcrumbs
// for operators and rules; they are never part of the public status surface.
package flagstore

import (
	"context"
)

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	Remove(ctx context.Context, key string, flags []string) error
}
