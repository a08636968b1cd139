package main

import (
	"bytes"
	"encoding/json"
	"image/color"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/ledger/ledgerrpc"
	"pixelate.dev/pixelate/ledger/store"
	"pixelate.dev/pixelate/pinning"
	"pixelate.dev/pixelate/pixelate"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/storage/memory"
)

const (
	ownerSeed   = "0101010101010101010101010101010101010101010101010101010101010101"
	accountSeed = "0202020202020202020202020202020202020202020202020202020202020202"
)

type env struct {
	t      *testing.T
	common []string
	dir    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	pins, err := pinning.NewServer(memory.New(), pinning.ServerOptions{ScratchDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	pinSrv := httptest.NewServer(pins)
	t.Cleanup(pinSrv.Close)

	st, err := store.Open(store.Options{InMemory: true}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	ledgerrpc.RegisterLedgerServer(gs, &ledgerrpc.Server{Ledger: st, Log: zerolog.Nop()})
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	e := &env{t: t, dir: t.TempDir()}
	e.common = []string{
		"--log-level", "error",
		"--keys-dir", filepath.Join(e.dir, "keys"),
		"--pin-endpoint", pinSrv.URL,
		"--ledger", lis.Addr().String(),
	}
	return e
}

func (e *env) run(stdin string, args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(append(append([]string{}, args...), e.common...), strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	code, out, errOut := e.run("", args...)
	require.Equal(e.t, 0, code, "pixelate %v: %s", args, errOut)
	return out
}

func (e *env) writeImage(name string, w, h int, c color.NRGBA) string {
	e.t.Helper()
	b, err := pixelate.Encode(raster.Uniform(w, h, c), color.NRGBA{A: 255})
	require.NoError(e.t, err)
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, b, 0o644))
	return path
}

func (e *env) gallery() (count uint64, records []ledger.Record) {
	e.t.Helper()
	var g struct {
		Count   uint64          `json:"count"`
		Records []ledger.Record `json:"records"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(e.mustRun("gallery", "--json")), &g))
	return g.Count, g.Records
}

func TestCLI_SubmitFlow(t *testing.T) {
	e := newEnv(t)
	red := e.writeImage("red.png", 100, 100, color.NRGBA{R: 255, A: 255})

	out := e.mustRun("key", "init", "--name", "owner", "--seed-hex", ownerSeed)
	assert.Contains(t, out, "Created key: ed25519:")
	e.mustRun("key", "init", "--name", "account", "--seed-hex", accountSeed, "--scheme", "dilithium3")
	assert.Contains(t, e.mustRun("key", "list"), "dilithium3")

	code, _, errOut := e.run("", "submit", red, "--yes")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "account init")

	assert.Contains(t, e.mustRun("account", "init", "--yes"), "Initialized account dilithium3:")
	assert.Contains(t, e.mustRun("account", "init", "--yes"), "already exists")

	out = e.mustRun("submit", red, "--yes")
	assert.Contains(t, out, "Preview: 100x100, block 5")
	assert.Contains(t, out, "Registered as #1 (1 in gallery)")
	cidLine := regexp.MustCompile(`CID: (\S+)`).FindStringSubmatch(out)
	require.Len(t, cidLine, 2)

	out = e.mustRun("submit", red, "--yes")
	assert.Contains(t, out, "already had this image")
	assert.Contains(t, out, "CID: "+cidLine[1])
	assert.Contains(t, out, "Registered as #2 (2 in gallery)")

	count, records := e.gallery()
	assert.Equal(t, uint64(2), count)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(2), records[0].Number)
	assert.Equal(t, cidLine[1], records[0].CID)

	bundlePath := filepath.Join(e.dir, "gallery.tar")
	assert.Contains(t, e.mustRun("gallery", "export", "-o", bundlePath), "Exported 2 images")
	fi, err := os.Stat(bundlePath)
	require.NoError(t, err)
	assert.NotZero(t, fi.Size())

	assert.Contains(t, e.mustRun("account", "remove", cidLine[1], "--yes"), "(1 left)")
	assert.Contains(t, e.mustRun("account", "status"), "Images: 1")

	assert.Contains(t, e.mustRun("account", "reset", "--yes"), "Reset.")
	count, records = e.gallery()
	assert.Zero(t, count)
	assert.Empty(t, records)
}

func TestCLI_Prompts(t *testing.T) {
	e := newEnv(t)
	img := e.writeImage("blue.png", 23, 17, color.NRGBA{B: 255, A: 255})
	e.mustRun("key", "init", "--name", "owner", "--seed-hex", ownerSeed)
	e.mustRun("key", "init", "--name", "account", "--seed-hex", accountSeed)
	e.mustRun("account", "init", "--yes")

	code, out, _ := e.run("n\n", "submit", img)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Cancelled.")

	// Confirm the upload, decline the signature.
	code, out, errOut := e.run("y\nn\n", "submit", img)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Sign with ed25519:")
	assert.Contains(t, errOut, "error: ")
	count, _ := e.gallery()
	assert.Zero(t, count)

	code, out, errOut = e.run("y\ny\n", "submit", img)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Registered as #1")
}

func TestCLI_Preview(t *testing.T) {
	e := newEnv(t)
	img := e.writeImage("green.png", 23, 17, color.NRGBA{G: 200, A: 255})
	dst := filepath.Join(e.dir, "out.png")

	out := e.mustRun("preview", img, "-o", dst, "--block-size", "4", "--sampling", "average")
	assert.Contains(t, out, "23x17, block 4, average sampling")
	assert.Contains(t, out, "CID: b")

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	m, err := pixelate.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 23, m.Width)
	assert.Equal(t, color.NRGBA{G: 200, A: 255}, m.RGBA(22, 16))
}

func TestCLI_Rejections(t *testing.T) {
	e := newEnv(t)
	notImage := filepath.Join(e.dir, "notes.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("just text"), 0o644))

	code, _, errOut := e.run("", "preview", notImage)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not accepted")

	code, _, errOut = e.run("", "key", "show", "--name", "owner")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "load key")

	var out, stderr bytes.Buffer
	code = run([]string{"preview", notImage, "--log-level", "loud"}, strings.NewReader(""), &out, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "log.level")
}
