package readings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/scrollkeeper/internal/badgerx"
	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
)

const keyspace = "reading/"

// sequenceKey zero-pads so lexical key order equals sequence order.
func sequenceKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyspace, seq))
}

// BadgerRepository stores JSON-encoded records keyed by sequence.
type BadgerRepository struct {
	r badgerx.Runner
}

func NewBadgerRepository(r badgerx.Runner) *BadgerRepository {
	return &BadgerRepository{r: r}
}

func (b *BadgerRepository) Save(ctx context.Context, rec *models.ReadingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	err = b.r.Update(func(txn *badger.Txn) error {
		key := sequenceKey(rec.Sequence)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("sequence %d already stored", rec.Sequence)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (b *BadgerRepository) GetByID(ctx context.Context, id string) (*models.ReadingRecord, error) {
	chain, err := b.ListChain(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].ID == id {
			rec := chain[i]
			return &rec, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (b *BadgerRepository) ListByScroll(ctx context.Context, scrollID int) ([]models.ReadingRecord, error) {
	all, err := b.ListCurrent(ctx)
	if err != nil {
		return nil, err
	}
	result := []models.ReadingRecord{}
	for _, r := range all {
		if r.ScrollID == scrollID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (b *BadgerRepository) ListRecentByScroll(ctx context.Context, scrollID int, limit int) ([]models.ReadingRecord, error) {
	recs, err := b.ListByScroll(ctx, scrollID)
	if err != nil {
		return nil, err
	}
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

func (b *BadgerRepository) ListCurrent(ctx context.Context) ([]models.ReadingRecord, error) {
	chain, err := b.ListChain(ctx)
	if err != nil {
		return nil, err
	}
	return current(chain), nil
}

func (b *BadgerRepository) ListChain(ctx context.Context) ([]models.ReadingRecord, error) {
	result := []models.ReadingRecord{}
	err := b.r.View(func(txn *badger.Txn) error {
		return badgerx.Scan(txn, []byte(keyspace), func(_, v []byte) error {
			var rec models.ReadingRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			result = append(result, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select readings: %w", err)
	}
	return result, nil
}

func (b *BadgerRepository) Clear(ctx context.Context) error {
	err := b.r.Update(func(txn *badger.Txn) error {
		keys, err := badgerx.Keys(txn, []byte(keyspace))
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
		return fmt.Errorf("failed to clear readings: %w", err)
	}
	return nil
}
