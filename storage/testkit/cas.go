package testkit

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// RunCASConformance checks the storage.CAS contract against an implementation.
func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, pixelated world")

		pin, err := cas.Put(ctx, want, storage.Meta{Name: "roundtrip"})
		require.NoError(t, err)
		wantID, err := cidutil.Sum(want)
		require.NoError(t, err)
		assert.Equal(t, wantID, pin.CID)
		assert.Equal(t, len(want), pin.Size)
		assert.False(t, pin.Duplicate)

		got, err := cas.Get(ctx, pin.CID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("DuplicatePin", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		first, err := cas.Put(ctx, b, storage.Meta{Name: "a"})
		require.NoError(t, err)
		second, err := cas.Put(ctx, b, storage.Meta{Name: "b"})
		require.NoError(t, err)

		assert.Equal(t, first.CID, second.CID)
		assert.False(t, first.Duplicate)
		assert.True(t, second.Duplicate)
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.Sum(b)
		require.NoError(t, err)

		ok, err := cas.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = cas.Get(ctx, id)
		assert.True(t, storage.IsNotFound(err), "got err=%v want ErrNotFound", err)

		_, err = cas.Put(ctx, b, storage.Meta{})
		require.NoError(t, err)
		ok, err = cas.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		ok, _ := cas.Has(ctx, cid.Undef)
		assert.False(t, ok)
		_, err := cas.Get(ctx, cid.Undef)
		assert.Error(t, err)
	})
}
