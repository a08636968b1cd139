package main

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pixelate.dev/pixelate/internal/config"
	"pixelate.dev/pixelate/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	log        zerolog.Logger

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{v: config.New(), in: bufio.NewReader(in), out: out, errOut: errOut, log: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "pixelate",
		Short:         "Pixelate images and register them in a ledger gallery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (toml, yaml or json)")
	pf.String("log-level", "info", "log level")
	pf.String("log-format", logging.FormatConsole, "log format (console|json)")
	pf.String("pin-endpoint", "", "pin service base URL")
	pf.String("ledger", "", "ledger node address")
	pf.String("keys-dir", "", "key store directory (default ~/.pixelate/keys)")
	pf.String("owner", "", "key that signs appends")
	pf.String("account", "", "key naming the ledger account")
	for key, flag := range map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"pin.endpoint":  "pin-endpoint",
		"ledger.target": "ledger",
		"keys.dir":      "keys-dir",
		"keys.owner":    "owner",
		"keys.account":  "account",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(
		newPreviewCmd(a),
		newSubmitCmd(a),
		newGalleryCmd(a),
		newAccountCmd(a),
		newKeyCmd(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile, a.log)
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.errOut})
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}
