// Command pixelate-pind serves the pin contract (POST /pins) and a read-only
// gateway (GET /ipfs/{cid}) on top of a registered storage backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pixelate.dev/pixelate/internal/config"
	"pixelate.dev/pixelate/internal/logging"
	"pixelate.dev/pixelate/pinning"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/casregistry"

	_ "pixelate.dev/pixelate/storage/ipfs"
	_ "pixelate.dev/pixelate/storage/localfs"
	_ "pixelate.dev/pixelate/storage/memory"
)

const (
	envPrefix     = "PIXELATE_PIND"
	backendMirror = "mirror"
)

type flags struct {
	configFile   string
	listen       string
	backend      string
	mirror       []string
	listBackends bool
	maxBytes     int64
	scratchDir   string
	apiKey       string
	apiSecret    string
	origins      []string
	cacheEntries int
	logLevel     string
	logFormat    string
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
		Use:           "pixelate-pind",
		Short:         "Pin service and gateway for pixelated images",
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
			if f.listBackends {
				printBackends(out)
				return nil
			}
			log, err := logging.New(logging.Options{Level: f.logLevel, Format: f.logFormat, Output: errOut})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, f, log)
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	fl := cmd.Flags()
	fl.StringVar(&f.configFile, "config", "", "optional config file keyed by flag name")
	fl.StringVar(&f.listen, "listen", "127.0.0.1:8001", "listen address")
	fl.StringVar(&f.backend, "backend", "localfs", "storage backend name, or \"mirror\"")
	fl.StringSliceVar(&f.mirror, "mirror", []string{"localfs", "ipfs"}, "backends pinned to when --backend=mirror")
	fl.BoolVar(&f.listBackends, "list-backends", false, "list supported backends and exit")
	fl.Int64Var(&f.maxBytes, "max-bytes", raster.DefaultMaxBytes, "largest accepted file part")
	fl.StringVar(&f.scratchDir, "scratch-dir", "", "directory for per-request staging files")
	fl.StringVar(&f.apiKey, "api-key", "", "required X-Api-Key (empty disables authentication)")
	fl.StringVar(&f.apiSecret, "api-secret", "", "required X-Api-Secret")
	fl.StringSliceVar(&f.origins, "allowed-origins", nil, "CORS origins (default any)")
	fl.IntVar(&f.cacheEntries, "cache-entries", 256, "gateway LRU size")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level")
	fl.StringVar(&f.logFormat, "log-format", logging.FormatConsole, "log format (console|json)")
	casregistry.RegisterFlags(fl)
	return cmd
}

func printBackends(out io.Writer) {
	for _, b := range casregistry.List() {
		if b.Description == "" {
			_, _ = fmt.Fprintf(out, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
	}
	_, _ = fmt.Fprintf(out, "%s\tpin to every backend named by --mirror\n", backendMirror)
}

// openBackend opens one registered backend, or every backend in mirror when
// name is "mirror". The returned close function releases all of them.
func openBackend(name string, mirror []string) (storage.CAS, func() error, error) {
	if name != backendMirror {
		cas, closeFn, err := casregistry.Open(name)
		if err != nil {
			return nil, nil, err
		}
		if closeFn == nil {
			closeFn = func() error { return nil }
		}
		return cas, closeFn, nil
	}

	var (
		m       storage.MirrorCAS
		closers []func() error
	)
	closeAll := func() error {
		var result *multierror.Error
		for _, c := range closers {
			if err := c(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
	for _, n := range mirror {
		n = strings.TrimSpace(n)
		if n == "" || n == backendMirror {
			continue
		}
		cas, closeFn, err := casregistry.Open(n)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("mirror backend %q: %w", n, err)
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		m.Backends = append(m.Backends, storage.NamedCAS{Name: n, CAS: cas})
	}
	if len(m.Backends) == 0 {
		return nil, nil, errors.New("--mirror names no backends")
	}
	return m, closeAll, nil
}

func serve(ctx context.Context, f flags, log zerolog.Logger) (err error) {
	cas, closeFn, err := openBackend(f.backend, f.mirror)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	opts := pinning.ServerOptions{
		MaxBytes:            f.maxBytes,
		ScratchDir:          f.scratchDir,
		AllowedOrigins:      f.origins,
		GatewayCacheEntries: f.cacheEntries,
	}
	if f.apiKey != "" {
		opts.Credentials = map[string]string{f.apiKey: f.apiSecret}
	}
	handler, err := pinning.NewServer(cas, opts, log)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", f.listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(lis) }()
	log.Info().Str("addr", lis.Addr().String()).Str("backend", f.backend).Msg("pixelate-pind listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
