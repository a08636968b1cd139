package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewFlagEnv returns a viper instance that resolves flag names from
// environment variables under prefix (PIXELATE_PIND + "--localfs-dir" looks
// up PIXELATE_PIND_LOCALFS_DIR).
func NewFlagEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyToFlags copies values known to v onto every flag of fs that was not set
// on the command line. Storage backends keep their settings in flag-bound
// variables, so this is how config files and the environment reach them.
func ApplyToFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	var result *multierror.Error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		var val string
		switch f.Value.Type() {
		case "stringSlice", "stringArray":
			val = strings.Join(v.GetStringSlice(f.Name), ",")
		default:
			val = v.GetString(f.Name)
		}
		if err := fs.Set(f.Name, val); err != nil {
			result = multierror.Append(result, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return result.ErrorOrNil()
}
