// Package cachestore is a small read-through cache used for role lookups and
// public status views. Both backends are safe for concurrent use.
package cachestore

import (
	"context"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
