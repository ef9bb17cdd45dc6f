// Package readings persists ReadingRecords. Every chain link is kept; a
// record re-confirmed under the same composite id supersedes the older link
// in the "current" views while the full chain stays auditable.
package readings

import (
	"context"

	"github.com/dmitrijs2005/scrollkeeper/internal/models"
)

// Repository stores reading records keyed by their chain sequence.
type Repository interface {
	// Save appends a record. The sequence must be unused.
	Save(ctx context.Context, r *models.ReadingRecord) error

	// GetByID returns the current record for a composite id, or
	// common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.ReadingRecord, error)

	// ListByScroll returns the current record of every id of a scroll,
	// ordered by sequence.
	ListByScroll(ctx context.Context, scrollID int) ([]models.ReadingRecord, error)

	// ListRecentByScroll returns up to limit most recent current records of
	// a scroll, ordered by sequence (oldest first).
	ListRecentByScroll(ctx context.Context, scrollID int, limit int) ([]models.ReadingRecord, error)

	// ListCurrent returns the current record of every id across scrolls.
	ListCurrent(ctx context.Context) ([]models.ReadingRecord, error)

	// ListChain returns every link ever written, ordered by sequence.
	ListChain(ctx context.Context) ([]models.ReadingRecord, error)

	// Clear removes every record.
	Clear(ctx context.Context) error
}

// current keeps, for every id, the record with the highest sequence.
// Input must be ordered by sequence; output preserves that order.
func current(chain []models.ReadingRecord) []models.ReadingRecord {
	latest := make(map[string]int64, len(chain))
	for _, r := range chain {
		latest[r.ID] = r.Sequence
	}
	out := make([]models.ReadingRecord, 0, len(latest))
	for _, r := range chain {
		if latest[r.ID] == r.Sequence {
			out = append(out, r)
		}
	}
	return out
}
