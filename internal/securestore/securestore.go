// Package securestore gives typed access to the security state kept in the
// key-value repository: the time anchor, per-day period ledgers, the chain
// head, encrypted backups and the secret verifier.
package securestore

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/metadata"
)

const (
	anchorKey    = "anchor"
	chainHeadKey = "chain:head"
	verifierKey  = "keys:verifier"
	ledgerPrefix = "ledger:"
	backupPrefix = "backup:"
)

// ErrSecretMismatch is returned when the store was initialised with a
// different secret than the one supplied.
var ErrSecretMismatch = errors.New("secret does not match this store")

// SecureStore wraps a metadata.Repository; bind it to a transaction by
// passing the transaction's repository.
type SecureStore struct {
	repo metadata.Repository
}

func New(repo metadata.Repository) *SecureStore {
	return &SecureStore{repo: repo}
}

func (s *SecureStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SecureStore) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.repo.Set(ctx, key, raw)
}

// Anchor returns the stored time anchor, or nil if none exists yet.
func (s *SecureStore) Anchor(ctx context.Context) (*models.TimeAnchor, error) {
	var a models.TimeAnchor
	ok, err := s.getJSON(ctx, anchorKey, &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// SetAnchor overwrites the single time anchor.
func (s *SecureStore) SetAnchor(ctx context.Context, a models.TimeAnchor) error {
	return s.setJSON(ctx, anchorKey, a)
}

// DayPeriods returns the periods confirmed on day, in confirmation order.
func (s *SecureStore) DayPeriods(ctx context.Context, day string) ([]models.Period, error) {
	var periods []models.Period
	if _, err := s.getJSON(ctx, ledgerPrefix+day, &periods); err != nil {
		return nil, err
	}
	return periods, nil
}

// AppendDayPeriod records p for day. Re-confirmed periods are not duplicated.
func (s *SecureStore) AppendDayPeriod(ctx context.Context, day string, p models.Period) error {
	periods, err := s.DayPeriods(ctx, day)
	if err != nil {
		return err
	}
	for _, existing := range periods {
		if existing == p {
			return nil
		}
	}
	return s.setJSON(ctx, ledgerPrefix+day, append(periods, p))
}

// ChainHead returns the last reserved chain link; the zero value means the
// chain is empty.
func (s *SecureStore) ChainHead(ctx context.Context) (models.ChainHead, error) {
	var h models.ChainHead
	_, err := s.getJSON(ctx, chainHeadKey, &h)
	return h, err
}

func (s *SecureStore) SetChainHead(ctx context.Context, h models.ChainHead) error {
	return s.setJSON(ctx, chainHeadKey, h)
}

func backupKey(seq int64) string {
	return fmt.Sprintf("%s%020d", backupPrefix, seq)
}

// PutBackup stores an encrypted backup blob under its sequence number.
func (s *SecureStore) PutBackup(ctx context.Context, seq int64, blob []byte) error {
	return s.repo.Set(ctx, backupKey(seq), blob)
}

// Backup returns the blob stored for seq, or nil.
func (s *SecureStore) Backup(ctx context.Context, seq int64) ([]byte, error) {
	return s.repo.Get(ctx, backupKey(seq))
}

func (s *SecureStore) DeleteBackup(ctx context.Context, seq int64) error {
	return s.repo.Delete(ctx, backupKey(seq))
}

// BackupSequences lists stored backup sequence numbers in ascending order.
func (s *SecureStore) BackupSequences(ctx context.Context) ([]int64, error) {
	all, err := s.repo.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}
	seqs := make([]int64, 0, len(all))
	for k := range all {
		n, err := strconv.ParseInt(strings.TrimPrefix(k, backupPrefix), 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, n)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// CheckVerifier compares verifier with the stored one, storing it on first
// use. A mismatch returns ErrSecretMismatch.
func (s *SecureStore) CheckVerifier(ctx context.Context, verifier []byte) error {
	saved, err := s.repo.Get(ctx, verifierKey)
	if err != nil {
		return err
	}
	if saved == nil {
		return s.repo.Set(ctx, verifierKey, verifier)
	}
	if subtle.ConstantTimeCompare(saved, verifier) == 0 {
		return ErrSecretMismatch
	}
	return nil
}

// Reset removes the anchor, every day ledger, the chain head and all
// backups. The secret verifier is kept.
func (s *SecureStore) Reset(ctx context.Context) error {
	if err := s.repo.Delete(ctx, anchorKey); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, chainHeadKey); err != nil {
		return err
	}
	if err := s.repo.DeletePrefix(ctx, ledgerPrefix); err != nil {
		return err
	}
	return s.repo.DeletePrefix(ctx, backupPrefix)
}
