package pinning

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/bundle"
)

func TestGateway_ReadsAndVerifies(t *testing.T) {
	h := newHarness(t, ServerOptions{}, ClientOptions{})
	ctx := context.Background()
	res, err := h.client.Pin(ctx, []byte("gallery image"), storage.Meta{Name: "g"})
	require.NoError(t, err)

	gw := NewGateway(h.server.URL+"/", nil)
	got, err := gw.Get(ctx, res.CID)
	require.NoError(t, err)
	assert.Equal(t, []byte("gallery image"), got)

	missing, err := cidutil.Sum([]byte("missing"))
	require.NoError(t, err)
	_, err = gw.Get(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGateway_RejectsWrongBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not what was asked for"))
	}))
	defer srv.Close()

	id, err := cidutil.Sum([]byte("expected"))
	require.NoError(t, err)
	_, err = NewGateway(srv.URL, nil).Get(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestGateway_FeedsBundleExport(t *testing.T) {
	h := newHarness(t, ServerOptions{}, ClientOptions{})
	ctx := context.Background()
	a, err := h.client.Pin(ctx, []byte("first"), storage.Meta{Name: "a"})
	require.NoError(t, err)
	b, err := h.client.Pin(ctx, []byte("second"), storage.Meta{Name: "b"})
	require.NoError(t, err)

	items := []bundle.Item{
		{Number: 2, CID: b.CID.String(), Owner: "owner"},
		{Number: 1, CID: a.CID.String(), Owner: "owner"},
	}
	var buf bytes.Buffer
	require.NoError(t, bundle.Export(ctx, &buf, NewGateway(h.server.URL, nil), items))
	assert.NotZero(t, buf.Len())
}
