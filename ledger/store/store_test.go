package store_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/ledger/store"
	"pixelate.dev/pixelate/wallet"
)

func seeded(t *testing.T, scheme string, b byte) wallet.Wallet {
	t.Helper()
	seed := make([]byte, wallet.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	w, err := wallet.FromSeed(scheme, seed)
	require.NoError(t, err)
	return w
}

func openStore(t *testing.T, opts store.Options) *store.Store {
	t.Helper()
	opts.InMemory = true
	s, err := store.Open(opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sum(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.Sum([]byte(s))
	require.NoError(t, err)
	return id
}

type fixture struct {
	store   *store.Store
	reg     *ledger.Registrar
	owner   wallet.Wallet
	account wallet.Wallet
	id      string
}

func newFixture(t *testing.T, opts store.Options) *fixture {
	s := openStore(t, opts)
	f := &fixture{
		store:   s,
		reg:     ledger.NewRegistrar(s, zerolog.Nop()),
		owner:   seeded(t, wallet.SchemeEd25519, 1),
		account: seeded(t, wallet.SchemeEd25519, 2),
	}
	f.id = string(f.account.Identity())
	return f
}

func TestReadUninitialized(t *testing.T) {
	f := newFixture(t, store.Options{})
	_, err := f.reg.ReadAccount(context.Background(), f.id)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	ok, err := f.reg.Exists(context.Background(), f.id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitializeThenEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.Options{})

	acct, err := f.reg.InitializeAccount(ctx, f.owner, f.account)
	require.NoError(t, err)
	assert.Equal(t, f.id, acct.ID)
	assert.Equal(t, f.owner.Identity(), acct.Authority)

	got, err := f.reg.ReadAccount(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Count)
	assert.Empty(t, got.Records)
	assert.Equal(t, f.owner.Identity(), got.Authority)

	_, err = f.reg.InitializeAccount(ctx, f.owner, f.account)
	assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)
}

func TestAppendOrderAndGallery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.Options{})
	_, err := f.reg.InitializeAccount(ctx, f.owner, f.account)
	require.NoError(t, err)

	first, second := sum(t, "first"), sum(t, "second")
	r1, err := f.reg.AppendRecord(ctx, f.id, first, f.owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.Number)
	assert.Equal(t, uint64(1), r1.Count)

	r2, err := f.reg.AppendRecord(ctx, f.id, second, f.owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Number)
	assert.NotEqual(t, r1.TxID, r2.TxID)

	acct, err := f.reg.ReadAccount(ctx, f.id)
	require.NoError(t, err)
	require.Len(t, acct.Records, 2)
	assert.Equal(t, uint64(2), acct.Count)
	assert.Equal(t, first.String(), acct.Records[0].CID)

	gallery := acct.Gallery()
	assert.Equal(t, second.String(), gallery[0].CID)
	assert.Equal(t, f.owner.Identity(), gallery[0].Owner)
}

func TestAppendUnknownAccount(t *testing.T) {
	f := newFixture(t, store.Options{})
	_, err := f.reg.AppendRecord(context.Background(), f.id, sum(t, "x"), f.owner)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReplayReturnsOriginalReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.Options{})
	_, err := f.reg.InitializeAccount(ctx, f.owner, f.account)
	require.NoError(t, err)

	tx := ledger.Tx{Op: ledger.OpAppend, Account: f.id, CID: sum(t, "once").String(), Owner: f.owner.Identity(), Nonce: "fixed"}
	msg, err := tx.SigningBytes()
	require.NoError(t, err)
	sig, err := f.owner.Sign(msg)
	require.NoError(t, err)
	stx := ledger.SignedTx{Tx: tx, Signatures: []ledger.Signature{{Signer: f.owner.Identity(), Sig: sig}}}

	a, err := f.store.Append(ctx, stx)
	require.NoError(t, err)
	b, err := f.store.Append(ctx, stx)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	acct, err := f.store.Read(ctx, f.id)
	require.NoError(t, err)
	assert.Len(t, acct.Records, 1)
}

func TestSignatureChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.Options{})
	_, err := f.reg.InitializeAccount(ctx, f.owner, f.account)
	require.NoError(t, err)

	tx := ledger.Tx{Op: ledger.OpAppend, Account: f.id, CID: sum(t, "sig").String(), Owner: f.owner.Identity(), Nonce: "n1"}
	msg, err := tx.SigningBytes()
	require.NoError(t, err)

	// unsigned
	_, err = f.store.Append(ctx, ledger.SignedTx{Tx: tx})
	assert.ErrorIs(t, err, ledger.ErrBadSignature)

	// signed by the wrong key under the owner's name
	sig, err := f.account.Sign(msg)
	require.NoError(t, err)
	_, err = f.store.Append(ctx, ledger.SignedTx{Tx: tx, Signatures: []ledger.Signature{{Signer: f.owner.Identity(), Sig: sig}}})
	assert.ErrorIs(t, err, ledger.ErrBadSignature)

	// initialize needs both keys
	other := seeded(t, wallet.SchemeEd25519, 9)
	initTx := ledger.Tx{Op: ledger.OpInitialize, Account: string(other.Identity()), Authority: f.owner.Identity(), Nonce: "n2"}
	msg, err = initTx.SigningBytes()
	require.NoError(t, err)
	sig, err = f.owner.Sign(msg)
	require.NoError(t, err)
	_, err = f.store.Initialize(ctx, ledger.SignedTx{Tx: initTx, Signatures: []ledger.Signature{{Signer: f.owner.Identity(), Sig: sig}}})
	assert.ErrorIs(t, err, ledger.ErrBadSignature)
}

func TestMaxRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.Options{MaxRecords: 2})
	_, err := f.reg.InitializeAccount(ctx, f.owner, f.account)
	require.NoError(t, err)

	_, err = f.reg.AppendRecord(ctx, f.id, sum(t, "a"), f.owner)
	require.NoError(t, err)
	_, err = f.reg.AppendRecord(ctx, f.id, sum(t, "b"), f.owner)
	require.NoError(t, err)
	_, err = f.reg.AppendRecord(ctx, f.id, sum(t, "c"), f.owner)
	assert.ErrorIs(t, err, ledger.ErrAccountFull)
}

func TestRemoveAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, store.Options{})
	_, err := f.reg.InitializeAccount(ctx, f.owner, f.account)
	require.NoError(t, err)

	a, b := sum(t, "a"), sum(t, "b")
	for _, id := range []cid.Cid{a, b, a} {
		_, err := f.reg.AppendRecord(ctx, f.id, id, f.owner)
		require.NoError(t, err)
	}

	stranger := seeded(t, wallet.SchemeEd25519, 7)
	_, err = f.reg.RemoveRecord(ctx, f.id, a, stranger)
	assert.ErrorIs(t, err, ledger.ErrBadSignature)

	rcpt, err := f.reg.RemoveRecord(ctx, f.id, a, f.owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rcpt.Number)
	assert.Equal(t, uint64(2), rcpt.Count)

	acct, err := f.reg.ReadAccount(ctx, f.id)
	require.NoError(t, err)
	require.Len(t, acct.Records, 2)
	assert.Equal(t, b.String(), acct.Records[0].CID)
	assert.Equal(t, uint64(3), acct.Records[1].Number)

	_, err = f.reg.RemoveRecord(ctx, f.id, sum(t, "never"), f.owner)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.reg.Reset(ctx, f.id, f.owner)
	require.NoError(t, err)
	acct, err = f.reg.ReadAccount(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), acct.Count)
	assert.Empty(t, acct.Records)

	// numbering keeps increasing after a reset
	rcpt, err = f.reg.AppendRecord(ctx, f.id, b, f.owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rcpt.Number)
	assert.Equal(t, uint64(1), rcpt.Count)
}

func TestDilithiumAccount(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, store.Options{})
	reg := ledger.NewRegistrar(s, zerolog.Nop())
	owner := seeded(t, wallet.SchemeDilithium3, 3)
	account := seeded(t, wallet.SchemeEd25519, 4)

	_, err := reg.InitializeAccount(ctx, owner, account)
	require.NoError(t, err)
	_, err = reg.AppendRecord(ctx, string(account.Identity()), sum(t, "pq"), owner)
	require.NoError(t, err)
}

func TestOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	owner := seeded(t, wallet.SchemeEd25519, 5)
	account := seeded(t, wallet.SchemeEd25519, 6)

	s, err := store.Open(store.Options{Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	reg := ledger.NewRegistrar(s, zerolog.Nop())
	_, err = reg.InitializeAccount(ctx, owner, account)
	require.NoError(t, err)
	_, err = reg.AppendRecord(ctx, string(account.Identity()), sum(t, "persist"), owner)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(store.Options{Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	acct, err := s.Read(ctx, string(account.Identity()))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acct.Count)
}
