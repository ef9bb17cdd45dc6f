package store

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/scrollkeeper/internal/badgerx"
	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/metadata"
	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/readings"
)

// BadgerStore implements Store over an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	txn *badger.Txn
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens a BadgerDB store with the given configuration.
func OpenBadger(cfg badgerx.Config) (*BadgerStore, error) {
	db, err := badgerx.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db), nil
}

func (s *BadgerStore) runner() badgerx.Runner {
	return badgerx.Runner{DB: s.db, Txn: s.txn}
}

func (s *BadgerStore) Metadata() metadata.Repository {
	return metadata.NewBadgerRepository(s.runner())
}

func (s *BadgerStore) Readings() readings.Repository {
	return readings.NewBadgerRepository(s.runner())
}

// Atomic runs fn in a read-write transaction. Concurrent writers touching the
// same keys make the later commit fail with badger.ErrConflict.
func (s *BadgerStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.txn != nil {
		return fn(ctx, s)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(ctx, &BadgerStore{db: s.db, txn: txn})
	})
}

func (s *BadgerStore) Close() error {
	if s.txn != nil {
		return nil
	}
	return s.db.Close()
}
