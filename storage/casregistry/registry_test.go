package casregistry

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/storage"
)

type nopCAS struct{}

func (nopCAS) Put(context.Context, []byte, storage.Meta) (storage.Pin, error) {
	return storage.Pin{}, nil
}
func (nopCAS) Get(context.Context, cid.Cid) ([]byte, error) { return nil, storage.ErrNotFound }
func (nopCAS) Has(context.Context, cid.Cid) (bool, error)   { return false, nil }

func TestRegisterAndOpen(t *testing.T) {
	var dir string
	b := Backend{
		Name: "test-nop",
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&dir, "test-nop-dir", "", "")
		},
		Open: func() (storage.CAS, func() error, error) { return nopCAS{}, nil, nil },
	}
	require.NoError(t, Register(b))
	assert.Error(t, Register(b), "duplicate registration must fail")
	assert.Contains(t, Names(), "test-nop")

	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--test-nop-dir=/tmp/x"}))
	assert.Equal(t, "/tmp/x", dir)

	cas, closeFn, err := Open("test-nop")
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.NotNil(t, cas)

	_, _, err = Open("nope")
	assert.Error(t, err)
}

func TestRegister_Validation(t *testing.T) {
	assert.Error(t, Register(Backend{}))
	assert.Error(t, Register(Backend{Name: "x"}))
	assert.Error(t, Register(Backend{Name: "x", RegisterFlags: func(*pflag.FlagSet) {}}))
}
