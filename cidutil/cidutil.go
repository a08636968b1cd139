// Package cidutil computes and checks the content identifiers used for
// pixelated images.
//
// The pipeline's own contract is CIDv1 with the "raw" multicodec and a
// sha2-256 multihash. Parse also accepts CIDv0 strings because third-party
// pinning services commonly answer with them.
package cidutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrEmpty    = errors.New("cidutil: empty cid")
	ErrMismatch = errors.New("cidutil: bytes do not match cid")
)

// Sum returns the CIDv1 (raw + sha2-256) of data.
func Sum(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String is Sum rendered as a string. It returns "" only if hashing fails,
// which multihash.Sum does not do for SHA2_256 with default length.
func String(data []byte) string {
	id, err := Sum(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes s and rejects the undefined CID.
func Parse(s string) (cid.Cid, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return cid.Undef, ErrEmpty
	}
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: decode %q: %w", s, err)
	}
	if !id.Defined() {
		return cid.Undef, ErrEmpty
	}
	return id, nil
}

// Verify reports ErrMismatch unless data hashes to id under id's own
// multihash function. This works for CIDs produced by other services as long
// as they hash the whole payload as a single block.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrEmpty
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrMismatch
	}
	return nil
}
