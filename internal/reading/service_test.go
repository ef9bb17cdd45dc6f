package reading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/metrics"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/monotonic"
	"github.com/dmitrijs2005/scrollkeeper/internal/policy"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
	"github.com/dmitrijs2005/scrollkeeper/internal/timestamp"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profile = timestamp.DeviceProfile{Screen: "80x24", Timezone: "UTC", Platform: "linux/amd64", ColorDepth: 24}

func testKeys() *cryptox.Keys {
	return &cryptox.Keys{
		MAC:   []byte("mac-key-0123456789abcdef01234567"),
		Enc:   []byte("enc-key-0123456789abcdef01234567"),
		Token: []byte("tok-key-0123456789abcdef01234567"),
	}
}

type sinkCall struct {
	put    []int64
	delete []int64
}

func (c *sinkCall) Put(_ context.Context, seq int64, _ []byte) error {
	c.put = append(c.put, seq)
	return nil
}

func (c *sinkCall) Delete(_ context.Context, seq int64) error {
	c.delete = append(c.delete, seq)
	return nil
}

type fixture struct {
	store   store.Store
	clock   *timex.FakeClock
	svc     *Service
	sink    *sinkCall
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:   s,
		clock:   timex.NewFakeClock(time.Date(2025, 1, 1, 8, 0, 17, 500e6, time.UTC), time.Hour),
		sink:    &sinkCall{},
		metrics: metrics.New(),
	}
	d := Deps{
		Store:    s,
		Keys:     testKeys(),
		Clock:    f.clock,
		Location: time.UTC,
		Profile:  profile,
		Sink:     f.sink,
		Metrics:  f.metrics,
	}
	for _, m := range mutate {
		m(&d)
	}
	f.svc = NewService(d)
	return f
}

func (f *fixture) record(t *testing.T, scrollID int) models.RecordResult {
	t.Helper()
	res, err := f.svc.RecordReading(context.Background(), scrollID)
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

func TestRecordSecureReading_First(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.record(t, 1)
	rec := res.Record
	require.NotNil(t, rec)

	assert.Equal(t, "1-2025-01-01-morning", rec.ID)
	assert.Equal(t, int64(1), rec.Sequence)
	assert.Equal(t, f.clock.Now().UnixMilli(), rec.Timestamp)
	assert.Equal(t, rec.Timestamp, rec.SecureTimestamp.Timestamp)
	assert.Equal(t, profile.Fingerprint(), rec.DeviceInfo)
	assert.False(t, rec.Suspicious)
	assert.Equal(t, 100.0, res.TrustScore)
	assert.True(t, res.Validation.IsValid)
	assert.Empty(t, res.Warnings)

	stored, err := f.store.Readings().GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *rec, *stored)

	anchor, err := securestore.New(f.store.Metadata()).Anchor(ctx)
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, models.PeriodMorning, anchor.PeriodOfAnchor)
	assert.Equal(t, rec.Timestamp, anchor.SystemTimeAtAnchor)

	assert.Equal(t, []int64{1}, f.sink.put)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReadingsRecordedTotal.WithLabelValues("false")))
}

func TestRecordSecureReading_ChainAcrossScrolls(t *testing.T) {
	f := newFixture(t)
	for i, scroll := range []int{1, 2, 1} {
		res := f.record(t, scroll)
		assert.Equal(t, int64(i+1), res.Record.Sequence)
		f.clock.Advance(5 * time.Hour)
	}

	stats, err := f.svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.ChainIntegrity)
	assert.Equal(t, 3, stats.TotalReadings)
}

func TestRecordSecureReading_ReconfirmSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.record(t, 1)
	f.clock.Advance(time.Hour)
	second := f.record(t, 1)

	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, int64(2), second.Record.Sequence)
	require.Len(t, second.Warnings, 1)
	assert.Contains(t, second.Warnings[0], "superseded")

	current, err := f.store.Readings().ListByScroll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, int64(2), current[0].Sequence)

	report, err := f.svc.GetIntegrityReport(ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.True(t, report.ChainIntact)
}

func TestRecordSecureReading_SuspiciousIsRecorded(t *testing.T) {
	f := newFixture(t)

	f.record(t, 1)
	f.clock.Advance(10 * time.Second)
	res := f.record(t, 1)

	assert.True(t, res.Record.Suspicious)
	assert.False(t, res.Validation.IsValid)
	assert.Equal(t, 50, res.Validation.RiskScore)
	assert.Contains(t, res.Warnings, "high risk reading (score 50)")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReadingsRecordedTotal.WithLabelValues("true")))

	// The suspicious record lowers trust for the next reading of the scroll.
	f.clock.Advance(5 * time.Hour)
	next := f.record(t, 1)
	assert.False(t, next.Record.Suspicious)
	assert.Equal(t, 0.0, next.TrustScore)
	assert.Contains(t, next.Warnings, "low trust score (0.0)")
}

func TestRecordSecureReading_UserTimestampSelectsBucket(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, 1, 1, 20, 15, 0, 0, time.UTC)

	res, err := f.svc.RecordSecureReading(context.Background(), 1, &at)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodEvening, res.Record.Period)
	assert.Equal(t, f.clock.Now().UnixMilli(), res.Record.Timestamp)

	sec := securestore.New(f.store.Metadata())
	anchor, err := sec.Anchor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.PeriodMorning, anchor.PeriodOfAnchor)
	periods, err := sec.DayPeriods(context.Background(), "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, []models.Period{models.PeriodMorning}, periods)
}

func TestIntegrity_TruncatedChainIsReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, scroll := range []int{1, 2, 1} {
		f.record(t, scroll)
		f.clock.Advance(5 * time.Hour)
	}

	// Drop the newest link; the remaining links still chain correctly.
	links, err := f.store.Readings().ListChain(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Readings().Clear(ctx))
	for i := range links[:2] {
		require.NoError(t, f.store.Readings().Save(ctx, &links[i]))
	}

	report, err := f.svc.ValidateScrollIntegrity(ctx, 2)
	require.NoError(t, err)
	assert.False(t, report.ChainIntact)
	assert.False(t, report.IsValid)
	assert.Contains(t, report.Issues, "chain head #3 does not match the last record")

	stats, err := f.svc.GetSecurityStats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.ChainIntegrity)

	token, err := f.svc.Attest(ctx, 2)
	require.NoError(t, err)
	claims, err := f.svc.VerifyAttestation(token)
	require.NoError(t, err)
	assert.False(t, claims.ChainIntact)
}

type failingStore struct {
	store.Store
}

func (failingStore) Atomic(context.Context, func(context.Context, store.Store) error) error {
	return errors.New("disk full")
}

func TestRecordSecureReading_StorageFailure(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Store = failingStore{d.Store} })

	res, err := f.svc.RecordReading(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, res.Success)
	assert.Equal(t, ReasonStorageFailure, res.Reason)
	assert.Nil(t, res.Record)
	assert.Empty(t, f.sink.put)
}

func TestValidateScrollIntegrity_DetectsTampering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.record(t, 1)
	f.clock.Advance(5 * time.Hour)
	f.record(t, 1)

	// A forged record that moves the first reading one day back.
	forged := *first.Record
	forged.Sequence = 3
	forged.Timestamp -= int64(24 * time.Hour / time.Millisecond)
	require.NoError(t, f.store.Readings().Save(ctx, &forged))

	report, err := f.svc.ValidateScrollIntegrity(ctx, 1)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.False(t, report.ChainIntact)
	assert.Equal(t, 2, report.TotalRecords)
	assert.Equal(t, 1, report.CorruptedRecords)
	assert.Equal(t, 0, report.DeviceMismatches)
	assert.NotEmpty(t, report.Issues)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntegrityIssuesTotal.WithLabelValues("signature")))
}

func TestValidateScrollIntegrity_DeviceMismatch(t *testing.T) {
	f := newFixture(t)
	f.record(t, 1)

	other := profile
	other.Screen = "1920x1080"
	moved := NewService(Deps{Store: f.store, Keys: testKeys(), Clock: f.clock, Location: time.UTC, Profile: other})

	report, err := moved.ValidateScrollIntegrity(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Equal(t, 1, report.DeviceMismatches)
}

func TestGetSecurityStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.svc.GetSecurityStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SecurityStats{AverageTrustScore: 100, ChainIntegrity: true}, stats)

	f.record(t, 1)
	f.clock.Advance(10 * time.Second)
	f.record(t, 1)
	f.clock.Advance(5 * time.Hour)
	f.record(t, 1)

	// Current records: the suspicious morning re-confirmation (trust 100)
	// and the afternoon reading (trust 0).
	stats, err = f.svc.GetSecurityStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalReadings)
	assert.Equal(t, 1, stats.SuspiciousReadings)
	assert.InDelta(t, 50.0, stats.AverageTrustScore, 0.001)
	assert.Equal(t, 0, stats.DeviceChanges)
	assert.True(t, stats.ChainIntegrity)
}

func TestCanRead_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.CanRead(ctx, 1)
	require.NoError(t, err)
	assert.True(t, v.CanRead)

	f.record(t, 1)

	f.clock.Advance(time.Hour)
	v, err = f.svc.CanRead(ctx, 1)
	require.NoError(t, err)
	assert.False(t, v.CanRead)
	assert.Equal(t, monotonic.ReasonSamePeriod, v.Reason)

	f.clock.Advance(4 * time.Hour)
	v, err = f.svc.CanRead(ctx, 1)
	require.NoError(t, err)
	assert.True(t, v.CanRead)
}

func TestResetSecurityState(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t)
		require.ErrorIs(t, f.svc.ResetSecurityState(context.Background()), common.ErrResetDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) { d.AllowReset = true })
		ctx := context.Background()
		f.record(t, 1)

		require.NoError(t, f.svc.ResetSecurityState(ctx))

		anchor, err := securestore.New(f.store.Metadata()).Anchor(ctx)
		require.NoError(t, err)
		assert.Nil(t, anchor)
		chain, err := f.store.Readings().ListChain(ctx)
		require.NoError(t, err)
		assert.Empty(t, chain)
		backups, err := f.svc.Backups(ctx)
		require.NoError(t, err)
		assert.Empty(t, backups)

		f.clock.Advance(time.Minute)
		res := f.record(t, 1)
		assert.Equal(t, int64(1), res.Record.Sequence)
	})
}

func TestAttest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, 4)
	f.clock.Advance(5 * time.Hour)
	last := f.record(t, 4)

	token, err := f.svc.Attest(ctx, 4)
	require.NoError(t, err)

	claims, err := f.svc.VerifyAttestation(token)
	require.NoError(t, err)
	assert.Equal(t, 4, claims.ScrollID)
	assert.Equal(t, 2, claims.Records)
	assert.Equal(t, last.Record.Sequence, claims.ChainHeadSequence)
	assert.Equal(t, last.Record.Hash, claims.ChainHeadHash)
	assert.Equal(t, 100.0, claims.TrustScore)
	assert.True(t, claims.ChainIntact)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.VerifyAttestation(token)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRestoreBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.record(t, 1)

	seqs, err := f.svc.Backups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, seqs)

	env, err := f.svc.RestoreBackup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, *res.Record, env.Record)
	assert.True(t, env.CreatedAt.Equal(f.clock.Now()))

	_, err = f.svc.RestoreBackup(ctx, 99)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecordSecureReading_BackupRetention(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		p := policy.Default()
		p.BackupRetention = 2
		d.Policy = &p
	})

	for _, scroll := range []int{1, 2, 3} {
		f.record(t, scroll)
		f.clock.Advance(5 * time.Hour)
	}

	seqs, err := f.svc.Backups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, seqs)
	assert.Equal(t, []int64{1, 2, 3}, f.sink.put)
	assert.Equal(t, []int64{1}, f.sink.delete)
}
