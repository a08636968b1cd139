package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
)

// CAS pins objects into a local directory.
//
// Objects are written once, read-only, keyed by CID and sharded by the last
// two characters of the CID string. Pin metadata lives next to the object in
// a ".json" sidecar written on first pin only.
type CAS struct {
	root     string
	maxBytes int64
}

type Options struct {
	// MaxObjectBytes rejects larger objects with storage.ErrTooLarge when non-zero.
	MaxObjectBytes int64
}

// New constructs a filesystem CAS rooted at root. The directory is created if needed.
func New(root string, opts Options) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root, maxBytes: opts.MaxObjectBytes}, nil
}

var _ storage.CAS = (*CAS)(nil)

func (c *CAS) Put(ctx context.Context, data []byte, meta storage.Meta) (storage.Pin, error) {
	if err := ctx.Err(); err != nil {
		return storage.Pin{}, err
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return storage.Pin{}, storage.ErrTooLarge
	}
	id, err := cidutil.Sum(data)
	if err != nil {
		return storage.Pin{}, err
	}
	pin := storage.Pin{CID: id, Size: len(data), Meta: meta}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return storage.Pin{}, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if !os.IsExist(err) {
			return storage.Pin{}, err
		}
		existing, rerr := c.Get(ctx, id)
		if rerr != nil || !bytes.Equal(existing, data) {
			// present but unreadable or corrupted; never repair in place
			return storage.Pin{}, storage.ErrImmutable
		}
		pin.Duplicate = true
		return pin, nil
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return storage.Pin{}, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return storage.Pin{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return storage.Pin{}, err
	}
	if err := c.writeMeta(id, meta); err != nil {
		return storage.Pin{}, err
	}
	return pin, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := os.Stat(c.pathFor(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Meta returns the metadata recorded when id was first pinned.
func (c *CAS) Meta(id cid.Cid) (storage.Meta, error) {
	var meta storage.Meta
	b, err := os.ReadFile(c.pathFor(id) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return meta, storage.ErrNotFound
		}
		return meta, err
	}
	err = json.Unmarshal(b, &meta)
	return meta, err
}

func (c *CAS) writeMeta(id cid.Cid, meta storage.Meta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(c.pathFor(id)+".json", b, 0o444)
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[len(s)-2:], s)
}
