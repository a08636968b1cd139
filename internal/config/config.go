// Package config loads settings for the pixelate commands.
//
// Sources, lowest precedence first: built-in defaults, an optional config file
// (TOML, YAML or JSON), PIXELATE_* environment variables and bound command
// line flags. Keys are dotted ("pin.endpoint"); the matching environment
// variable upper-cases the key and replaces dots and dashes with underscores
// (PIXELATE_PIN_ENDPOINT).
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image/color"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"pixelate.dev/pixelate/pixelate"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/wallet"
)

const EnvPrefix = "PIXELATE"

type Config struct {
	Log        Log        `mapstructure:"log"`
	Pixelation Pixelation `mapstructure:"pixelation"`
	Decoder    Decoder    `mapstructure:"decoder"`
	Pin        Pin        `mapstructure:"pin"`
	Ledger     Ledger     `mapstructure:"ledger"`
	Keys       Keys       `mapstructure:"keys"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Pixelation struct {
	BlockSize int    `mapstructure:"block_size"`
	Sampling  string `mapstructure:"sampling"`
	// Background is "#rrggbb"; alpha is flattened against it when encoding.
	Background string `mapstructure:"background"`
}

type Decoder struct {
	MaxBytes  int64    `mapstructure:"max_bytes"`
	MaxPixels int64    `mapstructure:"max_pixels"`
	Allowed  []string `mapstructure:"allowed"`
}

type Pin struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ScratchDir string        `mapstructure:"scratch_dir"`
	VerifyCID  bool          `mapstructure:"verify_cid"`
	Gateway    string        `mapstructure:"gateway"`
}

type Ledger struct {
	Target        string        `mapstructure:"target"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	AppendTimeout time.Duration `mapstructure:"append_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
}

type Keys struct {
	Dir string `mapstructure:"dir"`
	// Owner signs appends and is the authority of accounts it initializes.
	Owner string `mapstructure:"owner"`
	// Account is the key whose identity names the ledger account.
	Account string `mapstructure:"account"`
}

// SetDefaults registers every key with its default so that environment
// variables resolve for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("pixelation.block_size", pixelate.DefaultBlockSize)
	v.SetDefault("pixelation.sampling", pixelate.SampleOrigin.String())
	v.SetDefault("pixelation.background", "#000000")

	v.SetDefault("decoder.max_bytes", raster.DefaultMaxBytes)
	v.SetDefault("decoder.max_pixels", raster.DefaultMaxPixels)
	v.SetDefault("decoder.allowed", raster.DefaultOptions().Allowed)

	v.SetDefault("pin.endpoint", "http://127.0.0.1:8001")
	v.SetDefault("pin.api_key", "")
	v.SetDefault("pin.api_secret", "")
	v.SetDefault("pin.timeout", 60*time.Second)
	v.SetDefault("pin.scratch_dir", "")
	v.SetDefault("pin.verify_cid", true)
	v.SetDefault("pin.gateway", "")

	v.SetDefault("ledger.target", "127.0.0.1:9100")
	v.SetDefault("ledger.dial_timeout", 5*time.Second)
	v.SetDefault("ledger.append_timeout", 30*time.Second)
	v.SetDefault("ledger.read_timeout", 15*time.Second)

	v.SetDefault("keys.dir", "")
	v.SetDefault("keys.owner", "owner")
	v.SetDefault("keys.account", "account")
}

// New returns a viper instance with defaults and environment lookup wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, file string, log zerolog.Logger) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("config file loaded")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every impossible value at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
	}
	if _, err := c.PixelationConfig(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Decoder.MaxBytes <= 0 {
		result = multierror.Append(result, errors.New("decoder.max_bytes must be positive"))
	}
	if c.Decoder.MaxPixels <= 0 {
		result = multierror.Append(result, errors.New("decoder.max_pixels must be positive"))
	}
	if len(c.Decoder.Allowed) == 0 {
		result = multierror.Append(result, errors.New("decoder.allowed must not be empty"))
	}
	if u, err := url.Parse(c.Pin.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("pin.endpoint %q is not an absolute URL", c.Pin.Endpoint))
	}
	if c.Pin.Timeout < 0 || c.Ledger.AppendTimeout < 0 || c.Ledger.ReadTimeout < 0 || c.Ledger.DialTimeout < 0 {
		result = multierror.Append(result, errors.New("timeouts must not be negative"))
	}
	if c.Ledger.Target == "" {
		result = multierror.Append(result, errors.New("ledger.target is required"))
	}
	for _, name := range []struct{ key, val string }{{"keys.owner", c.Keys.Owner}, {"keys.account", c.Keys.Account}} {
		if err := wallet.CheckKeyName(name.val); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name.key, err))
		}
	}
	return result.ErrorOrNil()
}

// PixelationConfig converts the pixelation section.
func (c Config) PixelationConfig() (pixelate.Config, error) {
	sampling, err := pixelate.ParseSampling(c.Pixelation.Sampling)
	if err != nil {
		return pixelate.Config{}, fmt.Errorf("pixelation.sampling: %w", err)
	}
	bg, err := ParseColor(c.Pixelation.Background)
	if err != nil {
		return pixelate.Config{}, fmt.Errorf("pixelation.background: %w", err)
	}
	pc := pixelate.Config{BlockSize: c.Pixelation.BlockSize, Sampling: sampling, Background: bg}
	if err := pc.Validate(); err != nil {
		return pixelate.Config{}, fmt.Errorf("pixelation.block_size: %w", err)
	}
	return pc, nil
}

// DecoderOptions converts the decoder section.
func (c Config) DecoderOptions() raster.Options {
	return raster.Options{Allowed: c.Decoder.Allowed, MaxBytes: c.Decoder.MaxBytes, MaxPixels: c.Decoder.MaxPixels}
}

// ParseColor accepts "#rrggbb" or "#rrggbbaa". The result is always opaque
// since it is used as a flattening background.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q must be #rrggbb", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: 255}, nil
}
