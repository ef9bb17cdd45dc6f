package reading

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/scrollkeeper/internal/attest"
	"github.com/dmitrijs2005/scrollkeeper/internal/backup"
	"github.com/dmitrijs2005/scrollkeeper/internal/behavior"
	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
)

// CanRead reports whether scrollID may be read now.
func (s *Service) CanRead(ctx context.Context, scrollID int) (models.Verdict, error) {
	return s.monotonic.ValidateCompleteReading(ctx, scrollID)
}

// RecordReading records a reading for the current day and period. The time
// anchor is advanced as part of the same transaction.
func (s *Service) RecordReading(ctx context.Context, scrollID int) (models.RecordResult, error) {
	return s.RecordSecureReading(ctx, scrollID, nil)
}

func (s *Service) GetIntegrityReport(ctx context.Context, scrollID int) (models.IntegrityReport, error) {
	return s.ValidateScrollIntegrity(ctx, scrollID)
}

func (s *Service) GetStats(ctx context.Context) (models.SecurityStats, error) {
	return s.GetSecurityStats(ctx)
}

// ResetSecurityState clears the anchor, day ledgers, chain counters,
// backups and reading records. It fails with common.ErrResetDisabled
// unless reset was enabled.
func (s *Service) ResetSecurityState(ctx context.Context) error {
	if !s.allowReset {
		return common.ErrResetDisabled
	}
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if err := securestore.New(tx.Metadata()).Reset(ctx); err != nil {
			return err
		}
		return tx.Readings().Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("reset security state: %w", err)
	}
	s.log.Warn(ctx, "security state reset")
	return nil
}

// Attest issues a signed token summarising scrollID's progress.
func (s *Service) Attest(ctx context.Context, scrollID int) (string, error) {
	records, err := s.store.Readings().ListByScroll(ctx, scrollID)
	if err != nil {
		return "", err
	}
	head, err := securestore.New(s.store.Metadata()).ChainHead(ctx)
	if err != nil {
		return "", err
	}
	breaks, err := s.auditChain(ctx)
	if err != nil {
		return "", err
	}

	return attest.Issue(attest.Progress{
		ScrollID:          scrollID,
		Records:           len(records),
		ChainHeadSequence: head.Sequence,
		ChainHeadHash:     head.Hash,
		TrustScore:        behavior.CalculateTrustScore(records),
		ChainIntact:       len(breaks) == 0,
		DeviceInfo:        s.timestamps.DeviceFingerprint(),
	}, s.keys.Token, s.attestTTL, s.clock.Now())
}

// VerifyAttestation checks a token issued by Attest.
func (s *Service) VerifyAttestation(token string) (*attest.Claims, error) {
	return attest.Verify(token, s.keys.Token, s.clock.Now())
}

// Backups lists the retained backup sequences.
func (s *Service) Backups(ctx context.Context) ([]int64, error) {
	return s.backups.List(ctx, s.store)
}

// RestoreBackup decrypts the backup of the given chain sequence.
func (s *Service) RestoreBackup(ctx context.Context, seq int64) (*backup.Envelope, error) {
	return s.backups.Restore(ctx, s.store, seq)
}
