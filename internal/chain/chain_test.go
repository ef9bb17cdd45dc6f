package chain

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/scrollkeeper/internal/badgerx"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// buildChain reserves n links and materializes them as records.
func buildChain(t *testing.T, svc *Service, n int) []models.ReadingRecord {
	t.Helper()
	var records []models.ReadingRecord
	for i := 0; i < n; i++ {
		ts := models.SecureTimestamp{Timestamp: int64(1735711200000 + i*3600000), DeviceInfo: "dev"}
		scroll := 1 + i%2
		link, err := svc.GenerateSequentialReading(context.Background(), scroll, ts)
		require.NoError(t, err)
		records = append(records, models.ReadingRecord{
			ScrollID:     scroll,
			Sequence:     link.Sequence,
			Timestamp:    ts.Timestamp,
			Hash:         link.Hash,
			PreviousHash: link.PreviousHash,
			DeviceInfo:   ts.DeviceInfo,
		})
	}
	return records
}

func TestGenerateSequentialReading(t *testing.T) {
	svc := NewService(newStore(t))
	records := buildChain(t, svc, 3)

	assert.Equal(t, int64(1), records[0].Sequence)
	assert.Equal(t, GenesisHash, records[0].PreviousHash)
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].Sequence+1, records[i].Sequence)
		assert.Equal(t, records[i-1].Hash, records[i].PreviousHash)
	}
}

func TestGenerateSequentialReading_Badger(t *testing.T) {
	s, err := store.OpenBadger(badgerx.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	records := buildChain(t, NewService(s), 4)
	assert.True(t, ValidateChainIntegrity(records))
}

func TestNext_RolledBackReservationIsReused(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ts := models.SecureTimestamp{Timestamp: 1, DeviceInfo: "dev"}

	_ = s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		_, err := Next(ctx, tx, 1, ts)
		require.NoError(t, err)
		return assert.AnError
	})

	link, err := NewService(s).GenerateSequentialReading(ctx, 1, ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.Sequence)
}

func TestValidateChainIntegrity_RoundTrip(t *testing.T) {
	svc := NewService(newStore(t))
	records := buildChain(t, svc, 6)

	require.True(t, ValidateChainIntegrity(records))

	for i := range records {
		tampered := make([]models.ReadingRecord, len(records))
		copy(tampered, records)
		tampered[i].Timestamp += 1000
		assert.False(t, ValidateChainIntegrity(tampered), "mutating record %d", i)
	}
}

func TestValidateChainIntegrity_OrderIndependent(t *testing.T) {
	svc := NewService(newStore(t))
	records := buildChain(t, svc, 4)

	reversed := []models.ReadingRecord{records[3], records[2], records[1], records[0]}
	assert.True(t, ValidateChainIntegrity(reversed))
}

func TestValidateChainIntegrity_Empty(t *testing.T) {
	assert.True(t, ValidateChainIntegrity(nil))
}

func TestAudit(t *testing.T) {
	svc := NewService(newStore(t))
	records := buildChain(t, svc, 5)

	t.Run("removed record", func(t *testing.T) {
		gapped := append(append([]models.ReadingRecord{}, records[:2]...), records[3:]...)
		breaks := Audit(gapped)
		assert.Contains(t, breaks, Break{Sequence: 4, Kind: BreakSequence})
		assert.Contains(t, breaks, Break{Sequence: 4, Kind: BreakLink})
	})

	t.Run("removed oldest records", func(t *testing.T) {
		breaks := Audit(records[2:])
		assert.Equal(t, []Break{
			{Sequence: 3, Kind: BreakSequence},
			{Sequence: 3, Kind: BreakLink},
		}, breaks)
	})

	t.Run("rewritten record", func(t *testing.T) {
		edited := append([]models.ReadingRecord{}, records...)
		edited[2].DeviceInfo = "other"
		edited[2].Hash = ComputeHash(edited[2])
		breaks := Audit(edited)
		assert.Equal(t, []Break{{Sequence: 4, Kind: BreakLink}}, breaks)
	})
}

func TestAuditHead(t *testing.T) {
	st := newStore(t)
	records := buildChain(t, NewService(st), 4)
	head, err := securestore.New(st.Metadata()).ChainHead(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), head.Sequence)

	assert.Empty(t, AuditHead(records, head))
	assert.Equal(t, []Break{{Sequence: 4, Kind: BreakHead}}, AuditHead(records[:3], head))
	assert.Equal(t, []Break{{Sequence: 4, Kind: BreakHead}}, AuditHead(nil, head))
	assert.Empty(t, AuditHead(nil, models.ChainHead{}))

	forged := head
	forged.Hash = "deadbeef"
	assert.Equal(t, []Break{{Sequence: 4, Kind: BreakHead}}, AuditHead(records, forged))
}

func TestBreak_String(t *testing.T) {
	assert.Contains(t, Break{Sequence: 3, Kind: BreakHash}.String(), "#3")
	assert.Contains(t, Break{Sequence: 3, Kind: BreakLink}.String(), "predecessor")
	assert.Contains(t, Break{Sequence: 3, Kind: BreakSequence}.String(), "gap")
	assert.Contains(t, Break{Sequence: 3, Kind: BreakHead}.String(), "chain head #3")
}
