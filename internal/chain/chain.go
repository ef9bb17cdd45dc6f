// Package chain maintains the global hash chain of reading records: every
// confirmed reading reserves the next sequence number and links to the hash
// of its predecessor.
package chain

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
)

// GenesisHash is the previous hash of the first link.
const GenesisHash = "0"

// Service reserves chain links in a store.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// GenerateSequentialReading reserves the next link in its own transaction.
func (s *Service) GenerateSequentialReading(ctx context.Context, scrollID int, ts models.SecureTimestamp) (models.ChainLink, error) {
	var link models.ChainLink
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		link, err = Next(ctx, tx, scrollID, ts)
		return err
	})
	return link, err
}

// Next reads the chain head, computes the following link and advances the
// head. It must run inside tx so that concurrent writers cannot reserve the
// same sequence.
func Next(ctx context.Context, tx store.Store, scrollID int, ts models.SecureTimestamp) (models.ChainLink, error) {
	sec := securestore.New(tx.Metadata())

	head, err := sec.ChainHead(ctx)
	if err != nil {
		return models.ChainLink{}, fmt.Errorf("failed to read chain head: %w", err)
	}

	prev := head.Hash
	if head.Sequence == 0 {
		prev = GenesisHash
	}

	link := models.ChainLink{
		Sequence:     head.Sequence + 1,
		PreviousHash: prev,
	}
	link.Hash = ComputeHash(models.ReadingRecord{
		ScrollID:     scrollID,
		Sequence:     link.Sequence,
		Timestamp:    ts.Timestamp,
		PreviousHash: prev,
		DeviceInfo:   ts.DeviceInfo,
	})

	if err := sec.SetChainHead(ctx, models.ChainHead{Sequence: link.Sequence, Hash: link.Hash}); err != nil {
		return models.ChainLink{}, fmt.Errorf("failed to advance chain head: %w", err)
	}
	return link, nil
}

// ComputeHash hashes the chained fields of r.
func ComputeHash(r models.ReadingRecord) string {
	return cryptox.Hash(r.ChainFields()...)
}

// BreakKind classifies a chain defect.
type BreakKind string

const (
	BreakHash     BreakKind = "hash_mismatch"
	BreakLink     BreakKind = "link_mismatch"
	BreakSequence BreakKind = "sequence_gap"
	BreakHead     BreakKind = "head_mismatch"
)

// Break is one defect found by Audit.
type Break struct {
	Sequence int64
	Kind     BreakKind
}

func (b Break) String() string {
	switch b.Kind {
	case BreakHash:
		return fmt.Sprintf("record #%d hash does not match its contents", b.Sequence)
	case BreakLink:
		return fmt.Sprintf("record #%d does not link to its predecessor", b.Sequence)
	case BreakHead:
		return fmt.Sprintf("chain head #%d does not match the last record", b.Sequence)
	default:
		return fmt.Sprintf("sequence gap before record #%d", b.Sequence)
	}
}

// Audit sorts records by sequence and reports every defect. The first record
// must be sequence 1 and link to GenesisHash.
func Audit(records []models.ReadingRecord) []Break {
	sorted := make([]models.ReadingRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	var breaks []Break
	for i, r := range sorted {
		if ComputeHash(r) != r.Hash {
			breaks = append(breaks, Break{Sequence: r.Sequence, Kind: BreakHash})
		}
		if i == 0 {
			if r.Sequence != 1 {
				breaks = append(breaks, Break{Sequence: r.Sequence, Kind: BreakSequence})
			}
			if r.PreviousHash != GenesisHash {
				breaks = append(breaks, Break{Sequence: r.Sequence, Kind: BreakLink})
			}
			continue
		}
		prior := sorted[i-1]
		if r.Sequence != prior.Sequence+1 {
			breaks = append(breaks, Break{Sequence: r.Sequence, Kind: BreakSequence})
		}
		if r.PreviousHash != prior.Hash {
			breaks = append(breaks, Break{Sequence: r.Sequence, Kind: BreakLink})
		}
	}
	return breaks
}

// AuditHead runs Audit and also checks that the newest record is the
// persisted head, so links dropped from the end are reported.
func AuditHead(records []models.ReadingRecord, head models.ChainHead) []Break {
	breaks := Audit(records)

	var last models.ReadingRecord
	for _, r := range records {
		if r.Sequence > last.Sequence {
			last = r
		}
	}
	if last.Sequence != head.Sequence || (head.Sequence > 0 && last.Hash != head.Hash) {
		breaks = append(breaks, Break{Sequence: head.Sequence, Kind: BreakHead})
	}
	return breaks
}

// ValidateChainIntegrity reports whether records form an unbroken chain.
// An empty chain is intact.
func ValidateChainIntegrity(records []models.ReadingRecord) bool {
	return len(Audit(records)) == 0
}
