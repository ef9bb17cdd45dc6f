package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract checks behavior every Repository implementation must share.
func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("set then get", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))

		v, err := r.Get(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, []byte{0x01, 0x02}, v)
	})

	t.Run("missing key returns nil, nil", func(t *testing.T) {
		r := newRepo(t)
		v, err := r.Get(ctx, "absent")
		require.NoError(t, err)
		require.Nil(t, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, "k", []byte("old")))
		require.NoError(t, r.Set(ctx, "k", []byte("new")))

		v, err := r.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("new"), v)
	})

	t.Run("list filters by prefix", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, "ledger:2025-01-01", []byte{0xAA}))
		require.NoError(t, r.Set(ctx, "ledger:2025-01-02", []byte{0xBB}))
		require.NoError(t, r.Set(ctx, "anchor", []byte{0xCC}))

		m, err := r.List(ctx, "ledger:")
		require.NoError(t, err)
		assert.Len(t, m, 2)
		assert.Equal(t, []byte{0xAA}, m["ledger:2025-01-01"])

		all, err := r.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, "x", []byte{0x01}))
		require.NoError(t, r.Delete(ctx, "x"))

		v, err := r.Get(ctx, "x")
		require.NoError(t, err)
		require.Nil(t, v)

		require.NoError(t, r.Delete(ctx, "x"))
	})

	t.Run("delete prefix keeps other keys", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, "backup:1", []byte{1}))
		require.NoError(t, r.Set(ctx, "backup:2", []byte{2}))
		require.NoError(t, r.Set(ctx, "anchor", []byte{3}))
		require.NoError(t, r.DeletePrefix(ctx, "backup:"))

		m, err := r.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"anchor": {3}}, m)
	})

	t.Run("clear removes all", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, "a", []byte{1}))
		require.NoError(t, r.Set(ctx, "b", []byte{2}))
		require.NoError(t, r.Clear(ctx))

		m, err := r.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, m)
	})
}
