// Package pipeline drives one user session from a dropped file to a
// registered, gallery-visible image.
//
// A Session moves through
//
//	Idle -> Previewing -> Submitting -> Success | Failure -> Idle
//
// Submitting runs pin, append and read as an explicit sequence. Only one
// submission runs at a time and it is never cancelled or retried: a record is
// appended only after its bytes were pinned, and the gallery is read only
// after the append resolved.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/pinning"
	"pixelate.dev/pixelate/pixelate"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/wallet"
)

type Decoder interface {
	Decode(raster.File) (*raster.Image, error)
}

type Pinner interface {
	Pin(ctx context.Context, data []byte, meta storage.Meta) (pinning.Result, error)
}

type Registrar interface {
	InitializeAccount(ctx context.Context, owner, account wallet.Wallet) (ledger.Account, error)
	AppendRecord(ctx context.Context, accountID string, id cid.Cid, owner wallet.Wallet) (ledger.Receipt, error)
	ReadAccount(ctx context.Context, accountID string) (ledger.Account, error)
}

// Deps are the collaborators a session drives. Owner signs appends; AccountID
// is the ledger account the gallery lives in.
type Deps struct {
	Decoder   Decoder
	Pinner    Pinner
	Registrar Registrar
	Owner     wallet.Wallet
	AccountID string
}

type Config struct {
	Pixelation pixelate.Config
	// Meta is attached to every pin. Empty uses pinning.DefaultMeta.
	Meta storage.Meta

	// Per-stage timeouts. Zero means no timeout for that stage.
	PinTimeout    time.Duration
	AppendTimeout time.Duration
	ReadTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Pixelation:    pixelate.DefaultConfig(),
		Meta:          pinning.DefaultMeta(),
		PinTimeout:    60 * time.Second,
		AppendTimeout: 30 * time.Second,
		ReadTimeout:   15 * time.Second,
	}
}

// AccountStatus is the result of checking the session's ledger account.
type AccountStatus int

const (
	AccountUninitialized AccountStatus = iota + 1
	AccountReady
)

func (s AccountStatus) String() string {
	switch s {
	case AccountUninitialized:
		return "uninitialized"
	case AccountReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Outcome describes a completed submission.
type Outcome struct {
	CID       cid.Cid
	Duplicate bool
	Receipt   ledger.Receipt
}

type Session struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	mu        sync.Mutex
	state     State
	observers []Observer
	// gen counts gallery writes made by Submit and InitializeAccount. A read
	// started under an older gen is stale and never replaces the gallery.
	gen uint64
}

func New(deps Deps, cfg Config, log zerolog.Logger) (*Session, error) {
	if deps.Decoder == nil || deps.Pinner == nil || deps.Registrar == nil || deps.Owner == nil {
		return nil, errors.New("pipeline: decoder, pinner, registrar and owner are required")
	}
	if deps.AccountID == "" {
		return nil, errors.New("pipeline: account id is required")
	}
	if err := cfg.Pixelation.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		deps:  deps,
		cfg:   cfg,
		log:   log.With().Str("component", "pipeline").Str("account", deps.AccountID).Logger(),
		state: State{Phase: Idle},
	}, nil
}

// Observe registers o for all later transitions.
func (s *Session) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() State {
	st := s.state
	st.Gallery = append([]ledger.Record(nil), s.state.Gallery...)
	return st
}

// setLocked changes phase, keeping the gallery, and notifies observers.
func (s *Session) setLocked(phase Phase, preview *pixelate.Image, failure *Failure) {
	s.state.Phase = phase
	s.state.Preview = preview
	s.state.Failure = failure
	s.log.Debug().Stringer("phase", phase).Msg("transition")
	st := s.snapshot()
	for _, o := range s.observers {
		o.OnState(st)
	}
}

// Drop decodes and pixelates f. An accepted file replaces any current
// preview. A rejected file discards the current preview and leaves the
// session Idle; the returned error is a *Failure of kind InputRejected.
func (s *Session) Drop(f raster.File) (*pixelate.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == Submitting {
		return nil, ErrBusy
	}

	img, err := s.deps.Decoder.Decode(f)
	var px *pixelate.Image
	if err == nil {
		px, err = pixelate.Pixelate(img, s.cfg.Pixelation)
	}
	if err != nil {
		failure := rejectFailure(err)
		s.log.Info().Err(err).Str("file", f.Name).Msg("file rejected")
		for _, o := range s.observers {
			o.OnRejected(failure)
		}
		if s.state.Phase != Idle {
			s.setLocked(Idle, nil, nil)
		}
		return nil, failure
	}

	s.log.Info().
		Str("file", f.Name).
		Int("width", px.Width).
		Int("height", px.Height).
		Int("block_size", px.Config.BlockSize).
		Int("bytes", len(px.Bytes)).
		Msg("preview ready")
	s.setLocked(Previewing, px, nil)
	return px, nil
}

// Cancel discards the preview.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Phase {
	case Submitting:
		return ErrBusy
	case Previewing:
		s.setLocked(Idle, nil, nil)
	}
	return nil
}

// Submit pins the preview, appends it to the account and refreshes the
// gallery. Once started it runs to completion regardless of ctx
// cancellation; each stage is bounded by its own timeout. On return the
// session is Idle again.
func (s *Session) Submit(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	switch s.state.Phase {
	case Submitting:
		s.mu.Unlock()
		return Outcome{}, ErrBusy
	case Previewing:
	default:
		s.mu.Unlock()
		return Outcome{}, ErrNothingToSubmit
	}
	preview := s.state.Preview
	s.setLocked(Submitting, preview, nil)
	s.mu.Unlock()

	base := context.WithoutCancel(ctx)
	out, acct, failure := s.run(base, preview)

	s.mu.Lock()
	defer s.mu.Unlock()
	if failure != nil {
		s.log.Warn().Err(failure.Cause).
			Str("category", string(failure.Category)).
			Str("kind", string(failure.Kind)).
			Msg("submission failed")
		s.setLocked(Failed, nil, failure)
		s.setLocked(Idle, nil, nil)
		return out, failure
	}
	s.state.Gallery = acct.Gallery()
	s.state.Count = acct.Count
	s.gen++
	s.log.Info().
		Str("cid", out.CID.String()).
		Bool("duplicate", out.Duplicate).
		Uint64("count", acct.Count).
		Msg("submission complete")
	s.setLocked(Success, nil, nil)
	s.setLocked(Idle, nil, nil)
	return out, nil
}

func (s *Session) run(base context.Context, preview *pixelate.Image) (Outcome, ledger.Account, *Failure) {
	var out Outcome

	ctx, cancel := stage(base, s.cfg.PinTimeout)
	pin, err := s.deps.Pinner.Pin(ctx, preview.Bytes, s.cfg.Meta)
	cancel()
	if err != nil {
		return out, ledger.Account{}, newFailure(CategoryUpload, pinKind(err), err)
	}
	if !pin.CID.Defined() {
		return out, ledger.Account{}, newFailure(CategoryUpload, KindProtocol, errors.New("pin returned no cid"))
	}
	out.CID, out.Duplicate = pin.CID, pin.Duplicate

	ctx, cancel = stage(base, s.cfg.AppendTimeout)
	out.Receipt, err = s.deps.Registrar.AppendRecord(ctx, s.deps.AccountID, pin.CID, s.deps.Owner)
	cancel()
	if err != nil {
		return out, ledger.Account{}, newFailure(CategoryRegistration, ledgerKind(err), err)
	}

	ctx, cancel = stage(base, s.cfg.ReadTimeout)
	acct, err := s.deps.Registrar.ReadAccount(ctx, s.deps.AccountID)
	cancel()
	if err != nil {
		return out, ledger.Account{}, newFailure(CategoryGallery, ledgerKind(err), err)
	}
	return out, acct, nil
}

func stage(base context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, timeout)
}

// Refresh re-reads the account and replaces the gallery.
func (s *Session) Refresh(ctx context.Context) ([]ledger.Record, error) {
	gen, busy := s.readStart()
	if busy {
		return nil, ErrBusy
	}
	rctx, cancel := stage(ctx, s.cfg.ReadTimeout)
	acct, err := s.deps.Registrar.ReadAccount(rctx, s.deps.AccountID)
	cancel()
	if err != nil {
		return nil, newFailure(CategoryGallery, ledgerKind(err), err)
	}
	return s.storeRead(acct, gen), nil
}

// AccountStatus reports whether the session's account exists. A missing
// account is AccountUninitialized, not an error.
func (s *Session) AccountStatus(ctx context.Context) (AccountStatus, error) {
	gen, busy := s.readStart()
	if busy {
		return 0, ErrBusy
	}
	rctx, cancel := stage(ctx, s.cfg.ReadTimeout)
	acct, err := s.deps.Registrar.ReadAccount(rctx, s.deps.AccountID)
	cancel()
	if errors.Is(err, ledger.ErrNotFound) {
		return AccountUninitialized, nil
	}
	if err != nil {
		return 0, newFailure(CategoryAccount, ledgerKind(err), err)
	}
	s.storeRead(acct, gen)
	return AccountReady, nil
}

// InitializeAccount creates the session's account with account as its key
// and the session owner as authority. It checks for an existing account
// first and returns ErrAccountExists rather than initializing twice.
func (s *Session) InitializeAccount(ctx context.Context, account wallet.Wallet) error {
	if string(account.Identity()) != s.deps.AccountID {
		return ErrAccountMismatch
	}
	status, err := s.AccountStatus(ctx)
	if err != nil {
		return err
	}
	if status == AccountReady {
		return ErrAccountExists
	}

	ictx, cancel := stage(ctx, s.cfg.AppendTimeout)
	acct, err := s.deps.Registrar.InitializeAccount(ictx, s.deps.Owner, account)
	cancel()
	if errors.Is(err, ledger.ErrAlreadyInitialized) {
		return fmt.Errorf("%w: %v", ErrAccountExists, err)
	}
	if err != nil {
		return newFailure(CategoryAccount, ledgerKind(err), err)
	}
	s.storeWrite(acct)
	s.log.Info().Str("authority", string(acct.Authority)).Msg("account initialized")
	return nil
}

// Gallery returns the last read records, most recent first.
func (s *Session) Gallery() []ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Record(nil), s.state.Gallery...)
}

// readStart returns the gallery generation a read starts from, and whether a
// submission is running.
func (s *Session) readStart() (gen uint64, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen, s.state.Phase == Submitting
}

// storeRead replaces the gallery with acct unless a write landed after the
// read started at gen. It returns the gallery now held.
func (s *Session) storeRead(acct ledger.Account, gen uint64) []ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.log.Debug().Uint64("read_gen", gen).Uint64("gen", s.gen).Msg("stale gallery read dropped")
	} else {
		s.state.Gallery = acct.Gallery()
		s.state.Count = acct.Count
	}
	return append([]ledger.Record(nil), s.state.Gallery...)
}

func (s *Session) storeWrite(acct ledger.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Gallery = acct.Gallery()
	s.state.Count = acct.Count
	s.gen++
}
