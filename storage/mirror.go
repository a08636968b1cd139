package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"

	"pixelate.dev/pixelate/cidutil"
)

// NamedCAS associates a CAS with a stable backend name for logs and reports.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// MirrorCAS pins to every backend and reads from the first that has the object.
//
// Put computes the canonical CID itself and requires every backend to agree
// with it. All backends are attempted even after a failure; the failures are
// returned together. The pin counts as a duplicate only when every backend
// already held the bytes.
type MirrorCAS struct {
	Backends []NamedCAS
}

var _ CAS = MirrorCAS{}

func (m MirrorCAS) Put(ctx context.Context, data []byte, meta Meta) (Pin, error) {
	want, err := cidutil.Sum(data)
	if err != nil {
		return Pin{}, err
	}
	if len(m.Backends) == 0 {
		return Pin{}, fmt.Errorf("storage: mirror has no backends")
	}

	var result *multierror.Error
	dup := true
	for _, b := range m.Backends {
		if b.CAS == nil {
			result = multierror.Append(result, fmt.Errorf("storage: nil CAS for backend %q", b.Name))
			continue
		}
		pin, err := b.CAS.Put(ctx, data, meta)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("backend %q: %w", b.Name, err))
			continue
		}
		if pin.CID != want {
			result = multierror.Append(result, fmt.Errorf("backend %q: %w", b.Name, ErrCIDMismatch))
			continue
		}
		dup = dup && pin.Duplicate
	}
	if err := result.ErrorOrNil(); err != nil {
		return Pin{}, err
	}
	return Pin{CID: want, Size: len(data), Duplicate: dup, Meta: meta}, nil
}

func (m MirrorCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, b := range m.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m MirrorCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, b := range m.Backends {
		if b.CAS == nil {
			continue
		}
		ok, err := b.CAS.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
