package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
)

// CAS pins blocks into a local IPFS repository through the Kubo "ipfs" CLI.
//
// Blocks are stored raw with sha2-256 and CIDv1 so the returned CID matches
// cidutil.Sum; any disagreement is reported as storage.ErrCIDMismatch. Kubo
// has no place for pin metadata, so Meta is accepted and dropped.
type CAS struct {
	bin string
	env []string
}

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env}
}

var _ storage.CAS = (*CAS)(nil)

func (c *CAS) Put(ctx context.Context, data []byte, meta storage.Meta) (storage.Pin, error) {
	id, err := cidutil.Sum(data)
	if err != nil {
		return storage.Pin{}, err
	}
	pin := storage.Pin{CID: id, Size: len(data), Meta: meta}

	had, err := c.Has(ctx, id)
	if err != nil {
		return storage.Pin{}, err
	}

	out, err := c.run(ctx, data,
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
		"--pin=true",
		"/dev/stdin",
	)
	if err != nil {
		return storage.Pin{}, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return storage.Pin{}, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return storage.Pin{}, storage.ErrCIDMismatch
	}
	pin.Duplicate = had
	return pin, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(ctx, nil, "block", "get", "--offline", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, out); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := c.run(ctx, nil, "block", "stat", "--offline", id.String())
	if err == nil {
		return true, nil
	}
	if isLikelyNotFound(err) {
		return false, nil
	}
	return false, err
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block was not found locally")
}
