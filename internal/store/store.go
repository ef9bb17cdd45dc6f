// Package store is the persistence boundary of the anti-tampering core: a
// key-value repository and a reading-record repository that can be used
// together inside one atomic unit of work.
package store

import (
	"context"

	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/metadata"
	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/readings"
)

// Store vends repositories bound either to the database or, inside Atomic,
// to the enclosing transaction.
type Store interface {
	Metadata() metadata.Repository
	Readings() readings.Repository

	// Atomic runs fn in a single transaction. fn must only use the Store it
	// receives. Nested calls reuse the enclosing transaction.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Close() error
}
