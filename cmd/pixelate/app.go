package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/ledger/ledgerrpc"
	"pixelate.dev/pixelate/pinning"
	"pixelate.dev/pixelate/pipeline"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/wallet"
)

func (a *app) keyStore() (*wallet.KeyStore, error) {
	return wallet.CreateKeyStore(a.cfg.Keys.Dir)
}

// wallets loads the owner and the account key. The account key only
// contributes its identity unless the account is being initialized.
func (a *app) wallets() (owner, account wallet.Wallet, err error) {
	ks, err := a.keyStore()
	if err != nil {
		return nil, nil, err
	}
	owner, err = ks.Load(a.cfg.Keys.Owner)
	if err != nil {
		return nil, nil, fmt.Errorf("load owner key %q (create it with \"pixelate key init --name %s\"): %w",
			a.cfg.Keys.Owner, a.cfg.Keys.Owner, err)
	}
	account, err = ks.Load(a.cfg.Keys.Account)
	if err != nil {
		return nil, nil, fmt.Errorf("load account key %q (create it with \"pixelate key init --name %s\"): %w",
			a.cfg.Keys.Account, a.cfg.Keys.Account, err)
	}
	return owner, account, nil
}

func (a *app) dialLedger() (*ledgerrpc.Client, error) {
	return ledgerrpc.Dial(a.cfg.Ledger.Target, ledgerrpc.DialOptions{Timeout: a.cfg.Ledger.DialTimeout})
}

// approve wraps w so that every signature is confirmed on the terminal,
// unless yes is set.
func (a *app) approve(w wallet.Wallet, yes bool) wallet.Wallet {
	if yes {
		return w
	}
	return wallet.WithApproval(w, func(summary string) bool {
		return a.confirm(fmt.Sprintf("Sign with %s: %s?", w.Identity().Short(), summary))
	}, ledger.Summarize)
}

func (a *app) confirm(prompt string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(a.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// session wires a pipeline session to the configured services. The returned
// function closes the ledger connection.
func (a *app) session(owner, account wallet.Wallet) (*pipeline.Session, *ledger.Registrar, func() error, error) {
	pc, err := a.cfg.PixelationConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	pinner, err := pinning.NewClient(pinning.ClientOptions{
		Endpoint:   a.cfg.Pin.Endpoint,
		APIKey:     a.cfg.Pin.APIKey,
		APISecret:  a.cfg.Pin.APISecret,
		Timeout:    a.cfg.Pin.Timeout,
		ScratchDir: a.cfg.Pin.ScratchDir,
		VerifyCID:  a.cfg.Pin.VerifyCID,
	}, a.log)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := a.dialLedger()
	if err != nil {
		return nil, nil, nil, err
	}
	reg := ledger.NewRegistrar(client, a.log)

	cfg := pipeline.DefaultConfig()
	cfg.Pixelation = pc
	cfg.PinTimeout = a.cfg.Pin.Timeout
	cfg.AppendTimeout = a.cfg.Ledger.AppendTimeout
	cfg.ReadTimeout = a.cfg.Ledger.ReadTimeout

	s, err := pipeline.New(pipeline.Deps{
		Decoder:   raster.NewDecoder(a.cfg.DecoderOptions(), a.log),
		Pinner:    pinner,
		Registrar: reg,
		Owner:     owner,
		AccountID: string(account.Identity()),
	}, cfg, a.log)
	if err != nil {
		return nil, nil, nil, multierror.Append(err, client.Close())
	}
	return s, reg, client.Close, nil
}

// requireAccount fails with a hint when the account has not been initialized.
func requireAccount(ctx context.Context, s *pipeline.Session) error {
	status, err := s.AccountStatus(ctx)
	if err != nil {
		return err
	}
	if status != pipeline.AccountReady {
		return errors.New("the ledger account is not initialized; run \"pixelate account init\" first")
	}
	return nil
}

// readFile loads path as a dropped file. At most limit+1 bytes are read so the
// decoder can still report the real size from the file's metadata.
func readFile(path string, limit int64) (raster.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return raster.File{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return raster.File{}, err
	}
	r := io.Reader(f)
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return raster.File{}, err
	}
	return raster.File{
		Name:     filepath.Base(path),
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:     fi.Size(),
		Bytes:    b,
	}, nil
}

// describe renders err for people: pipeline failures and decode rejections
// carry their own message.
func describe(err error) string {
	var f *pipeline.Failure
	if errors.As(err, &f) {
		if f.Cause != nil {
			return fmt.Sprintf("%s (%v)", f.Human(), f.Cause)
		}
		return f.Human()
	}
	return err.Error()
}
