package readings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/dmitrijs2005/scrollkeeper/internal/dbx"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
)

const columns = `sequence, id, scroll_id, date_key, period, timestamp, hash, previous_hash,
	st_timestamp, st_signature, st_device_info, st_nonce, trust_score, device_info, suspicious`

// currentFilter restricts a query to the latest link of each id.
const currentFilter = `sequence IN (SELECT MAX(sequence) FROM readings GROUP BY id)`

// SQLRepository implements Repository over SQLite or PostgreSQL.
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

func NewSQLiteRepository(db dbx.DBTX) *SQLRepository {
	return NewSQLRepository(db, dbx.SQLite)
}

func NewPostgresRepository(db dbx.DBTX) *SQLRepository {
	return NewSQLRepository(db, dbx.Postgres)
}

func (r *SQLRepository) Save(ctx context.Context, rec *models.ReadingRecord) error {
	query := `INSERT INTO readings (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		rec.Sequence, rec.ID, rec.ScrollID, rec.DateKey, string(rec.Period), rec.Timestamp, rec.Hash, rec.PreviousHash,
		rec.SecureTimestamp.Timestamp, rec.SecureTimestamp.Signature, rec.SecureTimestamp.DeviceInfo, rec.SecureTimestamp.Nonce,
		rec.TrustScore, rec.DeviceInfo, rec.Suspicious,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.ReadingRecord, error) {
	query := `SELECT ` + columns + ` FROM readings WHERE id = ? ORDER BY sequence DESC LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reading %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLRepository) ListByScroll(ctx context.Context, scrollID int) ([]models.ReadingRecord, error) {
	query := `SELECT ` + columns + ` FROM readings WHERE scroll_id = ? AND ` + currentFilter + ` ORDER BY sequence`
	return r.list(ctx, query, scrollID)
}

func (r *SQLRepository) ListRecentByScroll(ctx context.Context, scrollID int, limit int) ([]models.ReadingRecord, error) {
	query := `SELECT ` + columns + ` FROM readings WHERE scroll_id = ? AND ` + currentFilter + ` ORDER BY sequence DESC LIMIT ?`
	recs, err := r.list(ctx, query, scrollID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (r *SQLRepository) ListCurrent(ctx context.Context) ([]models.ReadingRecord, error) {
	return r.list(ctx, `SELECT `+columns+` FROM readings WHERE `+currentFilter+` ORDER BY sequence`)
}

func (r *SQLRepository) ListChain(ctx context.Context) ([]models.ReadingRecord, error) {
	return r.list(ctx, `SELECT `+columns+` FROM readings ORDER BY sequence`)
}

func (r *SQLRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return fmt.Errorf("failed to clear readings: %w", err)
	}
	return nil
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]models.ReadingRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select readings: %w", err)
	}
	defer rows.Close()

	result := []models.ReadingRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading row: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reading rows: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.ReadingRecord, error) {
	var rec models.ReadingRecord
	var period string
	err := s.Scan(
		&rec.Sequence, &rec.ID, &rec.ScrollID, &rec.DateKey, &period, &rec.Timestamp, &rec.Hash, &rec.PreviousHash,
		&rec.SecureTimestamp.Timestamp, &rec.SecureTimestamp.Signature, &rec.SecureTimestamp.DeviceInfo, &rec.SecureTimestamp.Nonce,
		&rec.TrustScore, &rec.DeviceInfo, &rec.Suspicious,
	)
	if err != nil {
		return nil, err
	}
	rec.Period = models.Period(period)
	return &rec, nil
}
