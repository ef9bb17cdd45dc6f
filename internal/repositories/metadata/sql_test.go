package metadata

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSQLite_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Repository {
		return NewSQLiteRepository(setupDB(t))
	})
}

func TestGet_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Close())

	v, err := r.Get(ctx, "k")
	require.Error(t, err)
	require.Nil(t, v)
	require.Contains(t, err.Error(), "failed to get metadata[k]")
}

func TestSet_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	err := r.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to set metadata[k]")
}

func TestDelete_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	err := r.Delete(context.Background(), "k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to delete metadata[k]")
}

func TestClear_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	err := r.Clear(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to clear metadata")
}

func TestList_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	_, err := r.List(context.Background(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to list metadata")
}

func newPostgresWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgres_GetUsesDollarPlaceholders(t *testing.T) {
	repo, mock := newPostgresWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM metadata WHERE key = $1`)).
		WithArgs("anchor").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("{}")))

	v, err := repo.Get(context.Background(), "anchor")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetMissingReturnsNil(t *testing.T) {
	repo, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT value FROM metadata`).
		WithArgs("absent").
		WillReturnError(sql.ErrNoRows)

	v, err := repo.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPostgres_SetUpserts(t *testing.T) {
	repo, mock := newPostgresWithMock(t)

	mock.ExpectExec(`INSERT INTO metadata \(key, value\) VALUES \(\$1, \$2\)\s+ON CONFLICT\(key\) DO UPDATE`).
		WithArgs("chain:head", []byte("x")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Set(context.Background(), "chain:head", []byte("x")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeletePrefix(t *testing.T) {
	repo, mock := newPostgresWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM metadata WHERE substr(key, 1, $1) = $2`)).
		WithArgs(7, "backup:").
		WillReturnError(errors.New("db is down"))

	err := repo.DeletePrefix(context.Background(), "backup:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete metadata[backup:*]")
}
