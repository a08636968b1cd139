package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/bundle"
	"pixelate.dev/pixelate/storage/casregistry"

	_ "pixelate.dev/pixelate/storage/ipfs"
	_ "pixelate.dev/pixelate/storage/localfs"
	_ "pixelate.dev/pixelate/storage/memory"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cascli: pin store maintenance tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cascli put --backend localfs --localfs-dir <dir> [--name <name>] <file>")
	fmt.Fprintln(w, "  cascli get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  cascli import --backend localfs --localfs-dir <dir> <gallery.tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "IPFS backend:")
	fmt.Fprintln(w, "  cascli put --backend ipfs --ipfs-path <repo> <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - ipfs backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - import restores a bundle written by 'pixelate gallery export'")
	fmt.Fprintln(w, "  - objects are raw blocks (CIDv1 raw + sha2-256)")
}

type commonFlags struct {
	backend      string
	listBackends bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs)
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	return casregistry.Open(c.backend)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List() {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("put", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var name string
	fs.StringVar(&name, "name", "", "Pin name (default: file name)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli put [common flags] <file>")
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	if name == "" {
		name = filepath.Base(p)
	}
	pin, err := cas.Put(context.Background(), b, storage.Meta{Name: name})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if pin.Duplicate {
		fmt.Fprintln(errOut, "already stored")
	}
	_, _ = fmt.Fprintln(out, pin.CID.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli get [common flags] --cid <cid> [--out <file>]")
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 1
	}

	b, err := cas.Get(context.Background(), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli import [common flags] <gallery.tar>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	items, err := bundle.Import(context.Background(), f, cas)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, it := range items {
		_, _ = fmt.Fprintf(out, "%d\t%s\t%s\n", it.Number, it.CID, it.Owner)
	}
	return 0
}
