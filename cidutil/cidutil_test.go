package cidutil

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_Deterministic(t *testing.T) {
	a, err := Sum([]byte("pixels"))
	require.NoError(t, err)
	b, err := Sum([]byte("pixels"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, uint64(cid.Raw), a.Type())
	assert.Equal(t, uint64(1), a.Version())

	c, err := Sum([]byte("other pixels"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a.String(), String([]byte("pixels")))
}

func TestParse(t *testing.T) {
	want, err := Sum([]byte("hello"))
	require.NoError(t, err)

	got, err := Parse("  " + want.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("not-a-cid")
	assert.Error(t, err)

	// CIDv0, as returned by many pinning services.
	v0, err := Parse("QmX2osZ8n26X8cbKbcfKxPeYK2AeAN2NTQCbCm8QzKv6YL")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v0.Version())
}

func TestVerify(t *testing.T) {
	data := []byte("block")
	id, err := Sum(data)
	require.NoError(t, err)
	require.NoError(t, Verify(id, data))
	assert.ErrorIs(t, Verify(id, []byte("tampered")), ErrMismatch)
	assert.ErrorIs(t, Verify(cid.Undef, data), ErrEmpty)

	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	require.NoError(t, Verify(cid.NewCidV0(mh), data))
}
