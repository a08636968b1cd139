package localfs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir(), Options{})
		require.NoError(t, err)
		return cas
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir(), Options{})
	require.NoError(t, err)

	orig := []byte("original")
	pin, err := cas.Put(ctx, orig, storage.Meta{Name: "orig"})
	require.NoError(t, err)

	// corrupt the stored object out-of-band
	path := cas.pathFor(pin.CID)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	_, err = cas.Get(ctx, pin.CID)
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)

	// Put must not repair or overwrite the corrupted object.
	_, err = cas.Put(ctx, orig, storage.Meta{})
	assert.ErrorIs(t, err, storage.ErrImmutable)
}

func TestLocalFS_MetaKeptFromFirstPin(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir(), Options{})
	require.NoError(t, err)

	first := storage.Meta{Name: "Pixelate", Tags: map[string]string{"description": "first"}}
	pin, err := cas.Put(ctx, []byte("img"), first)
	require.NoError(t, err)

	_, err = cas.Put(ctx, []byte("img"), storage.Meta{Name: "second"})
	require.NoError(t, err)

	got, err := cas.Meta(pin.CID)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestLocalFS_MaxObjectBytes(t *testing.T) {
	cas, err := New(t.TempDir(), Options{MaxObjectBytes: 4})
	require.NoError(t, err)

	_, err = cas.Put(context.Background(), []byte("12345"), storage.Meta{})
	assert.ErrorIs(t, err, storage.ErrTooLarge)
}
