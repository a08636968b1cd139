package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/storage"
)

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"--list-backends"}, &out, &errOut), errOut.String())
	for _, name := range []string{"ipfs", "localfs", "memory", "mirror"} {
		assert.Contains(t, out.String(), name+"\t")
	}
}

func TestUnknownBackend(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"--backend", "nope", "--listen", "127.0.0.1:0"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "nope")
}

func TestOpenBackend_Mirror(t *testing.T) {
	cas, closeFn, err := openBackend(backendMirror, []string{"memory", " memory ", ""})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	m, ok := cas.(storage.MirrorCAS)
	require.True(t, ok)
	assert.Len(t, m.Backends, 2)

	pin, err := cas.Put(context.Background(), []byte("mirrored"), storage.Meta{})
	require.NoError(t, err)
	assert.False(t, pin.Duplicate)
}

func TestOpenBackend_MirrorNeedsBackends(t *testing.T) {
	_, _, err := openBackend(backendMirror, []string{backendMirror})
	assert.Error(t, err)

	_, _, err = openBackend(backendMirror, []string{"memory", "nope"})
	assert.Error(t, err)
}
