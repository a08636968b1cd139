// Package bundle packs gallery images into a deterministic TAR archive and
// loads such archives back into a store.
//
// Layout:
//
//	blocks/<cid>   raw image bytes, verified against the CID on both ends
//	index.json     gallery order and owners (non-authoritative)
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// Source is the read side of a store. storage.CAS satisfies it, as does the
// pin service gateway client.
type Source interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}

// Item is one gallery entry, in display order.
type Item struct {
	Number uint64 `json:"number"`
	CID    string `json:"cid"`
	Owner  string `json:"owner"`
}

// Export writes the blocks for items plus an index to w.
//
// Blocks are written once each, sorted by CID, with normalized headers, so the
// same items always produce the same bytes. Block bytes are verified against
// their CIDs before they are written.
func Export(ctx context.Context, w io.Writer, src Source, items []Item) error {
	if src == nil {
		return fmt.Errorf("bundle: nil source")
	}

	uniq := make(map[string]cid.Cid, len(items))
	for _, it := range items {
		id, err := cidutil.Parse(it.CID)
		if err != nil {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	keys := make([]string, 0, len(uniq))
	for k := range uniq {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)
	blocks := make([]indexBlock, 0, len(keys))
	for _, k := range keys {
		id := uniq[k]
		b, err := src.Get(ctx, id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: fetch %s: %w", k, err)
		}
		if err := cidutil.Verify(id, b); err != nil {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, "blocks/"+k, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock{CID: k, Size: len(b)})
	}

	idx := indexJSON{Version: FormatVersion, Blocks: blocks, Items: items}
	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

// Import reads a bundle from r, pins every block into cas and returns the
// gallery items recorded in the index (nil when the bundle has none).
//
// Unknown entries are rejected.
func Import(ctx context.Context, r io.Reader, cas storage.CAS) ([]Item, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var items []Item

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == "index.json" {
			var idx indexJSON
			if err := json.NewDecoder(tr).Decode(&idx); err != nil {
				return nil, fmt.Errorf("bundle: index: %w", err)
			}
			if idx.Version != FormatVersion {
				return nil, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
			}
			items = idx.Items
			continue
		}
		if !strings.HasPrefix(name, "blocks/") {
			return nil, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cidutil.Parse(strings.TrimPrefix(name, "blocks/"))
		if err != nil {
			return nil, storage.ErrInvalidCID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return nil, storage.ErrCIDMismatch
		}
		if _, ok := seen[id.String()]; ok {
			return nil, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[id.String()] = struct{}{}

		pin, err := cas.Put(ctx, payload, storage.Meta{Name: "bundle"})
		if err != nil {
			return nil, err
		}
		if !pin.CID.Equals(id) {
			return nil, storage.ErrCIDMismatch
		}
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Blocks  []indexBlock `json:"blocks"`
	Items   []Item       `json:"items"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
