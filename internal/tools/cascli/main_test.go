package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/bundle"
	"pixelate.dev/pixelate/storage/memory"
)

func TestPutGet_LocalFS(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o600))

	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"put", "--localfs-dir", dir, src}, &out, &errOut), errOut.String())
	id := strings.TrimSpace(out.String())
	require.NotEmpty(t, id)

	out.Reset()
	require.Equal(t, 0, run([]string{"get", "--localfs-dir", dir, "--cid", id}, &out, &errOut), errOut.String())
	assert.Equal(t, "pixels", out.String())

	out.Reset()
	errOut.Reset()
	require.Equal(t, 0, run([]string{"put", "--localfs-dir", dir, src}, &out, &errOut))
	assert.Equal(t, id, strings.TrimSpace(out.String()))
	assert.Contains(t, errOut.String(), "already stored")
}

func TestImport_RestoresBundle(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	a, err := mem.Put(ctx, []byte("first"), storage.Meta{})
	require.NoError(t, err)
	b, err := mem.Put(ctx, []byte("second"), storage.Meta{})
	require.NoError(t, err)

	var tarball bytes.Buffer
	require.NoError(t, bundle.Export(ctx, &tarball, mem, []bundle.Item{
		{Number: 2, CID: b.CID.String(), Owner: "ed25519:o"},
		{Number: 1, CID: a.CID.String(), Owner: "ed25519:o"},
	}))
	path := filepath.Join(t.TempDir(), "gallery.tar")
	require.NoError(t, os.WriteFile(path, tarball.Bytes(), 0o600))

	dir := t.TempDir()
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"import", "--localfs-dir", dir, path}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "2\t"+b.CID.String())

	out.Reset()
	require.Equal(t, 0, run([]string{"get", "--localfs-dir", dir, "--cid", a.CID.String()}, &out, &errOut), errOut.String())
	assert.Equal(t, "first", out.String())
}

func TestUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(nil, &out, &errOut))
	assert.Equal(t, 2, run([]string{"bogus"}, &out, &errOut))
	assert.Equal(t, 2, run([]string{"get", "--backend", "memory"}, &out, &errOut))
	assert.Equal(t, 1, run([]string{"get", "--backend", "memory", "--cid", "nope"}, &out, &errOut))
}
