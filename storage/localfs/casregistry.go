package localfs

import (
	"fmt"

	"github.com/spf13/pflag"

	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/casregistry"
)

var (
	flagDir      string
	flagMaxBytes int64
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Pin into a local directory",
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagDir, "localfs-dir", "", "directory for --backend=localfs")
			fs.Int64Var(&flagMaxBytes, "localfs-max-object-bytes", 0, "reject objects larger than this (0 = unlimited)")
		},
		Open: func() (storage.CAS, func() error, error) {
			if flagDir == "" {
				return nil, nil, fmt.Errorf("missing --localfs-dir")
			}
			cas, err := New(flagDir, Options{MaxObjectBytes: flagMaxBytes})
			return cas, nil, err
		},
	})
}
