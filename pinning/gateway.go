package pinning

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ipfs/go-cid"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/storage"
)

// Gateway reads pinned objects back over GET /ipfs/{cid}. Every response is
// verified against the requested CID.
type Gateway struct {
	base string
	http *http.Client
}

func NewGateway(base string, hc *http.Client) *Gateway {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Gateway{base: strings.TrimRight(base, "/"), http: hc}
}

func (g *Gateway) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+GatewayPath+id.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "gateway request failed", Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, storage.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: classify(resp.StatusCode, ""), Status: resp.StatusCode, Message: "gateway refused read"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, raster.DefaultMaxBytes*4))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "read gateway body", Cause: err}
	}
	if err := cidutil.Verify(id, data); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCIDMismatch, err)
	}
	return data, nil
}
