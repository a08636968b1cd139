package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Meta is descriptive metadata attached to a pin. It never influences the CID.
type Meta struct {
	Name string            `json:"name"`
	Tags map[string]string `json:"tags,omitempty"`
}

// Pin describes the outcome of storing an object.
//
// Duplicate is true when the store already held the exact bytes. Callers must
// treat a duplicate exactly like a fresh store: the CID is equally usable.
type Pin struct {
	CID       cid.Cid
	Size      int
	Duplicate bool
	Meta      Meta
}

// CAS is a content-addressable store that retains (pins) what it is given.
//
// Contract:
// - Put MUST be idempotent and report Duplicate on repeated identical bytes.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (CIDv1 raw + sha2-256).
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(ctx context.Context, data []byte, meta Meta) (Pin, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
