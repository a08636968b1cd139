// Package memory is an in-process storage.CAS. Contents are lost on exit.
package memory

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/casregistry"
)

type CAS struct {
	mu   sync.RWMutex
	objs map[cid.Cid][]byte
	meta map[cid.Cid]storage.Meta
}

func New() *CAS {
	return &CAS{objs: map[cid.Cid][]byte{}, meta: map[cid.Cid]storage.Meta{}}
}

var _ storage.CAS = (*CAS)(nil)

func (c *CAS) Put(ctx context.Context, data []byte, meta storage.Meta) (storage.Pin, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return storage.Pin{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pin := storage.Pin{CID: id, Size: len(data), Meta: meta}
	if _, ok := c.objs[id]; ok {
		pin.Duplicate = true
		return pin, nil
	}
	c.objs[id] = append([]byte(nil), data...)
	c.meta[id] = meta
	return pin, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.objs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objs[id]
	return ok, nil
}

// Meta returns the metadata recorded when id was first pinned.
func (c *CAS) Meta(id cid.Cid) (storage.Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.meta[id]
	return m, ok
}

// Len returns the number of distinct objects held.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objs)
}

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:          "memory",
		Description:   "In-process store (testing only; contents are lost on exit)",
		RegisterFlags: func(*pflag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}
