package ipfs

import (
	"os"

	"github.com/spf13/pflag"

	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/casregistry"
)

var (
	flagBin  string
	flagRepo string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Pin into a local Kubo repository via the ipfs CLI",
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "ipfs binary for --backend=ipfs")
			fs.StringVar(&flagRepo, "ipfs-path", "", "IPFS_PATH for --backend=ipfs (default: inherit)")
		},
		Open: func() (storage.CAS, func() error, error) {
			var env []string
			if flagRepo != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagRepo)
			}
			return New(Options{Bin: flagBin, Env: env}), nil, nil
		},
	})
}
