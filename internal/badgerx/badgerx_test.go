package badgerx

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *badger.DB {
	t.Helper()
	db, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestRunner_SharesEnclosingTxn(t *testing.T) {
	db := openMem(t)

	err := db.Update(func(txn *badger.Txn) error {
		r := Runner{DB: db, Txn: txn}
		require.NoError(t, r.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte("a:1"), []byte("x"))
		}))
		return r.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte("a:1"))
			require.NoError(t, err, "write must be visible inside the same txn")
			v, err := item.ValueCopy(nil)
			require.NoError(t, err)
			assert.Equal(t, []byte("x"), v)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestScanAndKeys(t *testing.T) {
	db := openMem(t)
	r := Runner{DB: db}

	require.NoError(t, r.Update(func(txn *badger.Txn) error {
		for _, k := range []string{"p:2", "p:1", "q:1"} {
			if err := txn.Set([]byte(k), []byte("v"+k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []string
	require.NoError(t, r.View(func(txn *badger.Txn) error {
		return Scan(txn, []byte("p:"), func(k, v []byte) error {
			got = append(got, string(k)+"="+string(v))
			return nil
		})
	}))
	assert.Equal(t, []string{"p:1=vp:1", "p:2=vp:2"}, got)

	require.NoError(t, r.View(func(txn *badger.Txn) error {
		keys, err := Keys(txn, []byte("q:"))
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("q:1")}, keys)
		return nil
	}))
}
