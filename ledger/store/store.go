// Package store is a Badger-backed ledger node. It keeps append-only image
// accounts and applies signed transactions atomically.
//
// Keys:
//
//	a/<account>                account header
//	r/<account>/<be64 number>  records in append order
//	t/<txid>                   receipts of applied transactions
//
// A transaction whose id was already applied is not applied again; its
// original receipt is returned instead.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"

	"pixelate.dev/pixelate/ledger"
)

type Options struct {
	// Dir is the Badger directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// MaxRecords caps the live records per account. Zero means no cap.
	MaxRecords uint64
}

type Store struct {
	db   *badger.DB
	opts Options
	log  zerolog.Logger
}

var _ ledger.RPC = (*Store)(nil)

func Open(opts Options, log zerolog.Logger) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("store: data directory is required")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db, opts: opts, log: log.With().Str("component", "ledger_store").Logger()}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Initialize applies an OpInitialize transaction.
func (s *Store) Initialize(ctx context.Context, stx ledger.SignedTx) (ledger.Receipt, error) {
	return s.apply(ctx, stx, func(tx *badger.Txn, txid string) (ledger.Receipt, error) {
		if stx.Tx.Op != ledger.OpInitialize {
			return ledger.Receipt{}, fmt.Errorf("%w: %s is not an initialize op", ledger.ErrInvalidTx, stx.Tx.Op)
		}
		h := header{ID: stx.Tx.Account, Authority: stx.Tx.Authority, Next: 1}
		err := insert(accountKey(h.ID), &h)(tx)
		if errors.Is(err, errKeyExists) {
			return ledger.Receipt{}, ledger.ErrAlreadyInitialized
		}
		if err != nil {
			return ledger.Receipt{}, err
		}
		return ledger.Receipt{TxID: txid}, nil
	})
}

// Append applies an OpAppend transaction. The record gets the next number of
// the account.
func (s *Store) Append(ctx context.Context, stx ledger.SignedTx) (ledger.Receipt, error) {
	return s.apply(ctx, stx, func(tx *badger.Txn, txid string) (ledger.Receipt, error) {
		if stx.Tx.Op != ledger.OpAppend {
			return ledger.Receipt{}, fmt.Errorf("%w: %s is not an append op", ledger.ErrInvalidTx, stx.Tx.Op)
		}
		var h header
		if err := retrieve(accountKey(stx.Tx.Account), &h)(tx); err != nil {
			return ledger.Receipt{}, err
		}
		if s.opts.MaxRecords > 0 && h.Count >= s.opts.MaxRecords {
			return ledger.Receipt{}, fmt.Errorf("%w: %d records", ledger.ErrAccountFull, h.Count)
		}
		rec := ledger.Record{Number: h.Next, CID: stx.Tx.CID, Owner: stx.Tx.Owner}
		if err := insert(recordKey(h.ID, rec.Number), &rec)(tx); err != nil {
			return ledger.Receipt{}, fmt.Errorf("could not insert record %d: %w", rec.Number, err)
		}
		h.Next++
		h.Count++
		if err := upsert(accountKey(h.ID), &h)(tx); err != nil {
			return ledger.Receipt{}, err
		}
		return ledger.Receipt{TxID: txid, Count: h.Count, Number: rec.Number}, nil
	})
}

// Admin applies OpRemove or OpReset. The signer must be the account's
// authority.
func (s *Store) Admin(ctx context.Context, stx ledger.SignedTx) (ledger.Receipt, error) {
	return s.apply(ctx, stx, func(tx *badger.Txn, txid string) (ledger.Receipt, error) {
		var h header
		if err := retrieve(accountKey(stx.Tx.Account), &h)(tx); err != nil {
			return ledger.Receipt{}, err
		}
		if stx.Tx.Authority != h.Authority {
			return ledger.Receipt{}, fmt.Errorf("%w: signer is not the account authority", ledger.ErrBadSignature)
		}
		var entries []recordEntry
		if err := records(h.ID, &entries)(tx); err != nil {
			return ledger.Receipt{}, err
		}

		switch stx.Tx.Op {
		case ledger.OpRemove:
			for _, e := range entries {
				if e.record.CID != stx.Tx.CID {
					continue
				}
				if err := remove(e.key)(tx); err != nil {
					return ledger.Receipt{}, err
				}
				h.Count--
				if err := upsert(accountKey(h.ID), &h)(tx); err != nil {
					return ledger.Receipt{}, err
				}
				return ledger.Receipt{TxID: txid, Count: h.Count, Number: e.record.Number}, nil
			}
			return ledger.Receipt{}, fmt.Errorf("%w: %s is not in account", ledger.ErrNotFound, stx.Tx.CID)
		case ledger.OpReset:
			for _, e := range entries {
				if err := remove(e.key)(tx); err != nil {
					return ledger.Receipt{}, err
				}
			}
			h.Count = 0
			if err := upsert(accountKey(h.ID), &h)(tx); err != nil {
				return ledger.Receipt{}, err
			}
			return ledger.Receipt{TxID: txid}, nil
		default:
			return ledger.Receipt{}, fmt.Errorf("%w: %s is not an admin op", ledger.ErrInvalidTx, stx.Tx.Op)
		}
	})
}

// Read returns the account with its records in append order.
func (s *Store) Read(ctx context.Context, accountID string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	var acct ledger.Account
	err := s.db.View(func(tx *badger.Txn) error {
		var h header
		if err := retrieve(accountKey(accountID), &h)(tx); err != nil {
			return err
		}
		var entries []recordEntry
		if err := records(accountID, &entries)(tx); err != nil {
			return err
		}
		acct = ledger.Account{ID: h.ID, Authority: h.Authority, Count: h.Count, Records: make([]ledger.Record, 0, len(entries))}
		for _, e := range entries {
			acct.Records = append(acct.Records, e.record)
		}
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return acct, nil
}

type applyFunc func(tx *badger.Txn, txid string) (ledger.Receipt, error)

// apply validates and verifies stx, then runs fn in one Badger transaction
// together with the replay check and receipt write.
func (s *Store) apply(ctx context.Context, stx ledger.SignedTx, fn applyFunc) (ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}
	if err := stx.Tx.Validate(); err != nil {
		return ledger.Receipt{}, err
	}
	if err := stx.Verify(); err != nil {
		return ledger.Receipt{}, err
	}
	txid, err := stx.Tx.ID()
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("%w: %v", ledger.ErrInvalidTx, err)
	}

	var rcpt ledger.Receipt
	replayed := false
	err = retryOnConflict(s.db.Update, func(tx *badger.Txn) error {
		replayed = false
		var seen bool
		if err := check(txKey(txid), &seen)(tx); err != nil {
			return err
		}
		if seen {
			replayed = true
			return retrieve(txKey(txid), &rcpt)(tx)
		}
		r, err := fn(tx, txid)
		if err != nil {
			return err
		}
		rcpt = r
		return insert(txKey(txid), &rcpt)(tx)
	})
	if err != nil {
		s.log.Debug().Err(err).Str("op", string(stx.Tx.Op)).Str("account", stx.Tx.Account).Msg("transaction rejected")
		return ledger.Receipt{}, err
	}
	s.log.Debug().
		Str("op", string(stx.Tx.Op)).
		Str("account", stx.Tx.Account).
		Str("txid", txid).
		Bool("replayed", replayed).
		Uint64("count", rcpt.Count).
		Msg("transaction applied")
	return rcpt, nil
}
