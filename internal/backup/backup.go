// Package backup keeps encrypted copies of reading records keyed by chain
// sequence, prunes old copies and optionally mirrors them off-device.
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/logging"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
	"github.com/google/uuid"
)

// Sink receives copies of sealed backups outside the local store.
type Sink interface {
	Put(ctx context.Context, seq int64, blob []byte) error
	Delete(ctx context.Context, seq int64) error
}

// Envelope is the plaintext form of a backup.
type Envelope struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"createdAt"`
	Record    models.ReadingRecord `json:"record"`
}

// Entry describes one Write: the sealed blob and the sequences pruned to
// make room for it.
type Entry struct {
	Sequence int64
	Blob     []byte
	Pruned   []int64
}

type Writer struct {
	key       []byte
	retention int
	clock     timex.Clock
	sink      Sink
	log       logging.Logger
}

// NewWriter returns a Writer sealing with key and keeping the newest
// retention backups. Envelopes are stamped with clock, or the system clock
// when nil. sink may be nil.
func NewWriter(key []byte, retention int, clock timex.Clock, sink Sink, log logging.Logger) *Writer {
	if log == nil {
		log = logging.Nop()
	}
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &Writer{key: key, retention: retention, clock: clock, sink: sink, log: log}
}

// Write seals rec, stores it under its sequence and prunes the oldest
// backups beyond the retention limit, all inside tx.
func (w *Writer) Write(ctx context.Context, tx store.Store, rec models.ReadingRecord) (Entry, error) {
	env := Envelope{ID: uuid.NewString(), CreatedAt: w.clock.Now().UTC(), Record: rec}
	blob, err := cryptox.Seal(env, w.key)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to seal backup: %w", err)
	}

	sec := securestore.New(tx.Metadata())
	if err := sec.PutBackup(ctx, rec.Sequence, blob); err != nil {
		return Entry{}, fmt.Errorf("failed to store backup: %w", err)
	}

	pruned, err := w.prune(ctx, sec)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Sequence: rec.Sequence, Blob: blob, Pruned: pruned}, nil
}

func (w *Writer) prune(ctx context.Context, sec *securestore.SecureStore) ([]int64, error) {
	seqs, err := sec.BackupSequences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	if len(seqs) <= w.retention {
		return nil, nil
	}
	stale := seqs[:len(seqs)-w.retention]
	for _, seq := range stale {
		if err := sec.DeleteBackup(ctx, seq); err != nil {
			return nil, fmt.Errorf("failed to prune backup %d: %w", seq, err)
		}
	}
	return stale, nil
}

// Mirror copies e to the sink. It is called after the local transaction
// commits; failures are logged and never returned.
func (w *Writer) Mirror(ctx context.Context, e Entry) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Put(ctx, e.Sequence, e.Blob); err != nil {
		w.log.Warn(ctx, "backup mirror upload failed", "sequence", e.Sequence, "error", err)
	}
	for _, seq := range e.Pruned {
		if err := w.sink.Delete(ctx, seq); err != nil {
			w.log.Warn(ctx, "backup mirror delete failed", "sequence", seq, "error", err)
		}
	}
}

// List returns the retained backup sequences, oldest first.
func (w *Writer) List(ctx context.Context, s store.Store) ([]int64, error) {
	return securestore.New(s.Metadata()).BackupSequences(ctx)
}

// Restore decrypts the backup stored for seq. A missing backup returns
// common.ErrorNotFound; one that fails to decrypt returns common.ErrIntegrity.
func (w *Writer) Restore(ctx context.Context, s store.Store, seq int64) (*Envelope, error) {
	blob, err := securestore.New(s.Metadata()).Backup(ctx, seq)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("backup %d: %w", seq, common.ErrorNotFound)
	}
	var env Envelope
	if err := cryptox.Open(blob, w.key, &env); err != nil {
		return nil, fmt.Errorf("backup %d: %w: %v", seq, common.ErrIntegrity, err)
	}
	return &env, nil
}
