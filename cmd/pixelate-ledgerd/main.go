// Command pixelate-ledgerd runs a ledger node: the Ledger gRPC service over a
// Badger account store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"pixelate.dev/pixelate/internal/config"
	"pixelate.dev/pixelate/internal/logging"
	"pixelate.dev/pixelate/ledger/ledgerrpc"
	"pixelate.dev/pixelate/ledger/store"
)

const envPrefix = "PIXELATE_LEDGERD"

type flags struct {
	configFile  string
	listen      string
	dataDir     string
	inMemory    bool
	maxRecords  uint64
	maxMsgBytes int
	logLevel    string
	logFormat   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	cmd := newRootCmd(out, errOut)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "pixelate-ledgerd",
		Short:         "Ledger node holding image accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := config.NewFlagEnv(envPrefix)
			if f.configFile != "" {
				v.SetConfigFile(f.configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read %s: %w", f.configFile, err)
				}
			}
			if err := config.ApplyToFlags(cmd.Flags(), v); err != nil {
				return err
			}
			if !f.inMemory && f.dataDir == "" {
				return errors.New("--data-dir is required unless --in-memory is set")
			}
			log, err := logging.New(logging.Options{Level: f.logLevel, Format: f.logFormat, Output: errOut})
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", f.listen)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, lis, f, log)
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	fl := cmd.Flags()
	fl.StringVar(&f.configFile, "config", "", "optional config file keyed by flag name")
	fl.StringVar(&f.listen, "listen", "127.0.0.1:9100", "listen address")
	fl.StringVar(&f.dataDir, "data-dir", "", "Badger data directory")
	fl.BoolVar(&f.inMemory, "in-memory", false, "keep the ledger in memory (lost on exit)")
	fl.Uint64Var(&f.maxRecords, "max-records", 0, "live records allowed per account (0 = unlimited)")
	fl.IntVar(&f.maxMsgBytes, "max-msg-bytes", 4<<20, "largest gRPC message accepted or sent")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level")
	fl.StringVar(&f.logFormat, "log-format", logging.FormatConsole, "log format (console|json)")
	return cmd
}

// serve runs the node on lis until ctx is done, then drains in-flight calls.
func serve(ctx context.Context, lis net.Listener, f flags, log zerolog.Logger) (err error) {
	st, err := store.Open(store.Options{Dir: f.dataDir, InMemory: f.inMemory, MaxRecords: f.maxRecords}, log)
	if err != nil {
		_ = lis.Close()
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	s := grpc.NewServer(grpc.MaxRecvMsgSize(f.maxMsgBytes), grpc.MaxSendMsgSize(f.maxMsgBytes))
	ledgerrpc.RegisterLedgerServer(s, &ledgerrpc.Server{Ledger: st, Log: log})

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()
	log.Info().
		Str("addr", lis.Addr().String()).
		Bool("in_memory", f.inMemory).
		Uint64("max_records", f.maxRecords).
		Msg("pixelate-ledgerd listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	s.GracefulStop()
	return nil
}
