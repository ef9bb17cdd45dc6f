// Package metadata provides the key-value repository holding the time
// anchor, per-day period ledgers, chain counters and encrypted backups.
package metadata

import (
	"context"
)

// Repository is a byte-oriented key-value store.
//
// Get returns (nil, nil) when the key does not exist.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns all pairs whose key starts with prefix ("" lists everything).
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// DeletePrefix removes all keys starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}
