package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/scrollkeeper/internal/badgerx"
)

// keyspace separates metadata pairs from other data sharing the database.
const keyspace = "meta/"

// BadgerRepository stores pairs in BadgerDB under the "meta/" keyspace.
type BadgerRepository struct {
	r badgerx.Runner
}

func NewBadgerRepository(r badgerx.Runner) *BadgerRepository {
	return &BadgerRepository{r: r}
}

func (b *BadgerRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.r.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyspace + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (b *BadgerRepository) Set(ctx context.Context, key string, value []byte) error {
	err := b.r.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyspace+key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (b *BadgerRepository) Delete(ctx context.Context, key string) error {
	err := b.r.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyspace + key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (b *BadgerRepository) DeletePrefix(ctx context.Context, prefix string) error {
	err := b.r.Update(func(txn *badger.Txn) error {
		keys, err := badgerx.Keys(txn, []byte(keyspace+prefix))
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s*]: %w", prefix, err)
	}
	return nil
}

func (b *BadgerRepository) Clear(ctx context.Context) error {
	if err := b.DeletePrefix(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

func (b *BadgerRepository) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := b.r.View(func(txn *badger.Txn) error {
		return badgerx.Scan(txn, []byte(keyspace+prefix), func(k, v []byte) error {
			result[string(k[len(keyspace):])] = v
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	return result, nil
}
