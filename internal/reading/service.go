// Package reading orchestrates a reading confirmation: it signs a timestamp,
// scores the behavior, reserves the next chain link, persists the record
// with its encrypted backup and advances the time anchor, all in one
// transaction. It also aggregates integrity and trust statistics.
package reading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/backup"
	"github.com/dmitrijs2005/scrollkeeper/internal/behavior"
	"github.com/dmitrijs2005/scrollkeeper/internal/chain"
	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/logging"
	"github.com/dmitrijs2005/scrollkeeper/internal/metrics"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/monotonic"
	"github.com/dmitrijs2005/scrollkeeper/internal/policy"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
	"github.com/dmitrijs2005/scrollkeeper/internal/timestamp"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
)

// ReasonStorageFailure is the user-facing reason of a failed recording.
const ReasonStorageFailure = "could not save the reading, please try again"

// Deps are the collaborators of Service. Store, Keys and Clock are required.
type Deps struct {
	Store    store.Store
	Keys     *cryptox.Keys
	Clock    timex.Clock
	Location *time.Location
	Policy   *policy.Policy
	Profile  timestamp.DeviceProfile
	// Sink mirrors encrypted backups; nil disables mirroring.
	Sink    backup.Sink
	Logger  logging.Logger
	Metrics *metrics.Metrics

	AllowReset     bool
	AttestationTTL time.Duration
}

type Service struct {
	store   store.Store
	keys    *cryptox.Keys
	clock   timex.Clock
	loc     *time.Location
	policy  policy.Policy
	log     logging.Logger
	metrics *metrics.Metrics

	timestamps *timestamp.Service
	behavior   *behavior.Validator
	monotonic  *monotonic.Validator
	backups    *backup.Writer

	allowReset bool
	attestTTL  time.Duration
}

func NewService(d Deps) *Service {
	p := policy.Default()
	if d.Policy != nil {
		p = *d.Policy
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	log := d.Logger
	if log == nil {
		log = logging.Nop()
	}
	ttl := d.AttestationTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		store:      d.Store,
		keys:       d.Keys,
		clock:      d.Clock,
		loc:        loc,
		policy:     p,
		log:        log,
		metrics:    d.Metrics,
		timestamps: timestamp.NewService(d.Keys.MAC, d.Clock, d.Profile),
		behavior:   behavior.NewValidator(p),
		monotonic: monotonic.NewValidator(d.Store, d.Keys.MAC, d.Clock,
			monotonic.WithLocation(loc),
			monotonic.WithPolicy(p),
			monotonic.WithLogger(log),
			monotonic.WithMetrics(d.Metrics),
		),
		backups:    backup.NewWriter(d.Keys.Enc, p.BackupRetention, d.Clock, d.Sink, log),
		allowReset: d.AllowReset,
		attestTTL:  ttl,
	}
}

// RecordSecureReading confirms a reading of scrollID. userTimestamp, when
// set, only selects the day and period the record is filed under; the
// recorded instant is always sampled from the clock. The time anchor and the
// day ledger always take the clock's day and period, so a back-dated record
// cannot complete a period that real time has not reached.
//
// Suspicious readings are recorded and flagged, not refused. Storage
// failures return a failed result together with the error.
func (s *Service) RecordSecureReading(ctx context.Context, scrollID int, userTimestamp *time.Time) (models.RecordResult, error) {
	ts, err := s.timestamps.Generate()
	if err != nil {
		return s.fail(ctx, scrollID, err)
	}

	signedAt := ts.Time().In(s.loc)
	bucketAt := signedAt
	if userTimestamp != nil {
		bucketAt = userTimestamp.In(s.loc)
	}
	day, period := models.Bucket(bucketAt)
	id := models.RecordID(scrollID, day, period)

	var (
		rec      models.ReadingRecord
		pattern  models.PatternCheck
		trust    float64
		entry    backup.Entry
		warnings = []string{}
	)

	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		readings := tx.Readings()

		recent, err := readings.ListRecentByScroll(ctx, scrollID, s.policy.RecentWindow)
		if err != nil {
			return err
		}
		pattern = s.behavior.ValidateReadingPattern(signedAt, recent)

		history, err := readings.ListByScroll(ctx, scrollID)
		if err != nil {
			return err
		}
		trust = behavior.CalculateTrustScore(history)

		link, err := chain.Next(ctx, tx, scrollID, ts)
		if err != nil {
			return err
		}

		switch _, err := readings.GetByID(ctx, id); {
		case err == nil:
			warnings = append(warnings, fmt.Sprintf("%s of %s was already recorded; the earlier record is superseded", period, day))
			s.log.Warn(ctx, "reading re-confirmed", "id", id, "sequence", link.Sequence)
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		rec = models.ReadingRecord{
			ID:              id,
			ScrollID:        scrollID,
			DateKey:         day,
			Period:          period,
			Timestamp:       ts.Timestamp,
			Sequence:        link.Sequence,
			Hash:            link.Hash,
			PreviousHash:    link.PreviousHash,
			SecureTimestamp: ts,
			TrustScore:      trust,
			DeviceInfo:      ts.DeviceInfo,
			Suspicious:      !pattern.IsValid || pattern.RiskScore > s.policy.SuspiciousRisk,
		}
		if err := readings.Save(ctx, &rec); err != nil {
			return err
		}

		if entry, err = s.backups.Write(ctx, tx, rec); err != nil {
			return err
		}

		_, err = s.monotonic.CompleteReadingIn(ctx, tx, scrollID)
		return err
	})
	if err != nil {
		return s.fail(ctx, scrollID, err)
	}

	s.backups.Mirror(ctx, entry)
	s.metrics.Recorded(rec.Suspicious)
	if rec.Suspicious {
		s.log.Warn(ctx, "suspicious reading recorded", "id", id, "risk", pattern.RiskScore, "issues", pattern.Issues)
	}

	if pattern.RiskScore >= s.policy.HighRiskWarning {
		warnings = append(warnings, fmt.Sprintf("high risk reading (score %d)", pattern.RiskScore))
	}
	if trust < float64(s.policy.LowTrustWarning) {
		warnings = append(warnings, fmt.Sprintf("low trust score (%.1f)", trust))
	}

	return models.RecordResult{
		Success:    true,
		Record:     &rec,
		Validation: pattern,
		TrustScore: trust,
		Warnings:   warnings,
	}, nil
}

func (s *Service) fail(ctx context.Context, scrollID int, err error) (models.RecordResult, error) {
	s.log.Error(ctx, "failed to record reading", "scroll_id", scrollID, "error", err)
	return models.RecordResult{
		Reason:   ReasonStorageFailure,
		Warnings: []string{},
	}, fmt.Errorf("record reading: %w", err)
}

// ValidateScrollIntegrity re-validates every current record of scrollID and
// the whole chain.
func (s *Service) ValidateScrollIntegrity(ctx context.Context, scrollID int) (models.IntegrityReport, error) {
	records, err := s.store.Readings().ListByScroll(ctx, scrollID)
	if err != nil {
		return models.IntegrityReport{}, err
	}
	breaks, err := s.auditChain(ctx)
	if err != nil {
		return models.IntegrityReport{}, err
	}

	report := models.IntegrityReport{
		ScrollID:     scrollID,
		TotalRecords: len(records),
		Issues:       []string{},
	}
	for _, r := range records {
		st := r.SecureTimestamp
		if !s.timestamps.Validate(st) || st.Timestamp != r.Timestamp || st.DeviceInfo != r.DeviceInfo {
			report.CorruptedRecords++
			report.Issues = append(report.Issues, fmt.Sprintf("record %s has an invalid timestamp signature", r.ID))
		}
		if !s.timestamps.IsCurrentDevice(r.DeviceInfo) {
			report.DeviceMismatches++
			report.Issues = append(report.Issues, fmt.Sprintf("record %s was made on a different device", r.ID))
		}
	}

	for _, b := range breaks {
		report.Issues = append(report.Issues, b.String())
	}
	report.ChainIntact = len(breaks) == 0
	report.IsValid = report.CorruptedRecords == 0 && report.ChainIntact

	s.metrics.IntegrityIssue("signature", report.CorruptedRecords)
	s.metrics.IntegrityIssue("device", report.DeviceMismatches)
	s.metrics.IntegrityIssue("chain", len(breaks))
	return report, nil
}

// auditChain checks every stored link against the persisted chain head.
func (s *Service) auditChain(ctx context.Context) ([]chain.Break, error) {
	links, err := s.store.Readings().ListChain(ctx)
	if err != nil {
		return nil, err
	}
	head, err := securestore.New(s.store.Metadata()).ChainHead(ctx)
	if err != nil {
		return nil, err
	}
	return chain.AuditHead(links, head), nil
}

// GetSecurityStats aggregates every current record across scrolls.
func (s *Service) GetSecurityStats(ctx context.Context) (models.SecurityStats, error) {
	records, err := s.store.Readings().ListCurrent(ctx)
	if err != nil {
		return models.SecurityStats{}, err
	}
	breaks, err := s.auditChain(ctx)
	if err != nil {
		return models.SecurityStats{}, err
	}

	stats := models.SecurityStats{
		TotalReadings:     len(records),
		AverageTrustScore: 100,
		ChainIntegrity:    len(breaks) == 0,
	}
	if len(records) == 0 {
		return stats, nil
	}

	devices := map[string]struct{}{}
	sum := 0.0
	for _, r := range records {
		if r.Suspicious {
			stats.SuspiciousReadings++
		}
		sum += r.TrustScore
		devices[r.DeviceInfo] = struct{}{}
	}
	stats.AverageTrustScore = sum / float64(len(records))
	stats.DeviceChanges = len(devices) - 1
	return stats, nil
}
