package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"pixelate.dev/pixelate/wallet"
)

// RPC is the ledger node as seen by a client. Both the in-process store and
// the gRPC client implement it. Transport failures are reported as
// ErrUnavailable.
type RPC interface {
	Initialize(ctx context.Context, tx SignedTx) (Receipt, error)
	Append(ctx context.Context, tx SignedTx) (Receipt, error)
	Admin(ctx context.Context, tx SignedTx) (Receipt, error)
	Read(ctx context.Context, accountID string) (Account, error)
}

// Registrar builds, signs and submits ledger transactions.
type Registrar struct {
	rpc RPC
	log zerolog.Logger
}

func NewRegistrar(rpc RPC, log zerolog.Logger) *Registrar {
	return &Registrar{rpc: rpc, log: log.With().Str("component", "registrar").Logger()}
}

func newNonce() string { return uuid.NewString() }

func sign(tx Tx, signers ...wallet.Wallet) (SignedTx, error) {
	if err := tx.Validate(); err != nil {
		return SignedTx{}, err
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return SignedTx{}, err
	}
	out := SignedTx{Tx: tx}
	for _, w := range signers {
		sig, err := w.Sign(msg)
		if err != nil {
			if errors.Is(err, wallet.ErrRejected) {
				return SignedTx{}, fmt.Errorf("%w: %s", ErrSigningRejected, w.Identity().Short())
			}
			return SignedTx{}, fmt.Errorf("sign with %s: %w", w.Identity().Short(), err)
		}
		out.Signatures = append(out.Signatures, Signature{Signer: w.Identity(), Sig: sig})
	}
	return out, nil
}

// InitializeAccount creates the account identified by account's identity with
// owner as its authority. Both keys sign.
func (r *Registrar) InitializeAccount(ctx context.Context, owner, account wallet.Wallet) (Account, error) {
	tx := Tx{
		Op:        OpInitialize,
		Account:   string(account.Identity()),
		Authority: owner.Identity(),
		Nonce:     newNonce(),
	}
	stx, err := sign(tx, owner, account)
	if err != nil {
		return Account{}, err
	}
	rcpt, err := r.rpc.Initialize(ctx, stx)
	if err != nil {
		return Account{}, err
	}
	r.log.Info().Str("account", tx.Account).Str("txid", rcpt.TxID).Msg("account initialized")
	return Account{ID: tx.Account, Authority: tx.Authority}, nil
}

// AppendRecord registers id in accountID on behalf of owner. A successful
// append is final.
func (r *Registrar) AppendRecord(ctx context.Context, accountID string, id cid.Cid, owner wallet.Wallet) (Receipt, error) {
	if !id.Defined() {
		return Receipt{}, fmt.Errorf("%w: undefined cid", ErrInvalidTx)
	}
	tx := Tx{
		Op:      OpAppend,
		Account: accountID,
		CID:     id.String(),
		Owner:   owner.Identity(),
		Nonce:   newNonce(),
	}
	stx, err := sign(tx, owner)
	if err != nil {
		return Receipt{}, err
	}
	rcpt, err := r.rpc.Append(ctx, stx)
	if err != nil {
		return Receipt{}, err
	}
	r.log.Info().
		Str("account", accountID).
		Str("cid", tx.CID).
		Uint64("number", rcpt.Number).
		Uint64("count", rcpt.Count).
		Str("txid", rcpt.TxID).
		Msg("record appended")
	return rcpt, nil
}

func (r *Registrar) ReadAccount(ctx context.Context, accountID string) (Account, error) {
	return r.rpc.Read(ctx, accountID)
}

func (r *Registrar) Exists(ctx context.Context, accountID string) (bool, error) {
	_, err := r.rpc.Read(ctx, accountID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// RemoveRecord removes the first record whose CID is id. Only the account
// authority may do this.
func (r *Registrar) RemoveRecord(ctx context.Context, accountID string, id cid.Cid, authority wallet.Wallet) (Receipt, error) {
	if !id.Defined() {
		return Receipt{}, fmt.Errorf("%w: undefined cid", ErrInvalidTx)
	}
	return r.admin(ctx, Tx{
		Op:        OpRemove,
		Account:   accountID,
		CID:       id.String(),
		Authority: authority.Identity(),
		Nonce:     newNonce(),
	}, authority)
}

// Reset clears every record of accountID. Only the account authority may do
// this.
func (r *Registrar) Reset(ctx context.Context, accountID string, authority wallet.Wallet) (Receipt, error) {
	return r.admin(ctx, Tx{
		Op:        OpReset,
		Account:   accountID,
		Authority: authority.Identity(),
		Nonce:     newNonce(),
	}, authority)
}

func (r *Registrar) admin(ctx context.Context, tx Tx, authority wallet.Wallet) (Receipt, error) {
	stx, err := sign(tx, authority)
	if err != nil {
		return Receipt{}, err
	}
	rcpt, err := r.rpc.Admin(ctx, stx)
	if err != nil {
		return Receipt{}, err
	}
	r.log.Warn().Str("account", tx.Account).Str("op", string(tx.Op)).Str("cid", tx.CID).Uint64("count", rcpt.Count).Msg("administrative change")
	return rcpt, nil
}
