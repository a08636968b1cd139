package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"

	"pixelate.dev/pixelate/wallet"
)

// Record is one registered image.
type Record struct {
	Number uint64          `cbor:"number" json:"number"`
	CID    string          `cbor:"cid" json:"cid"`
	Owner  wallet.Identity `cbor:"owner" json:"owner"`
}

// Account is an append-only list of records. Count is the number of live
// records; Number values keep increasing across removals and resets.
type Account struct {
	ID        string          `cbor:"id" json:"id"`
	Authority wallet.Identity `cbor:"authority" json:"authority"`
	Count     uint64          `cbor:"count" json:"count"`
	Records   []Record        `cbor:"records" json:"records"`
}

// Gallery returns the records most recent first.
func (a Account) Gallery() []Record {
	out := make([]Record, len(a.Records))
	for i, r := range a.Records {
		out[len(a.Records)-1-i] = r
	}
	return out
}

type Op string

const (
	OpInitialize Op = "initialize"
	OpAppend     Op = "append"
	OpRemove     Op = "remove"
	OpReset      Op = "reset"
)

// Tx is the signed body of a ledger operation.
//
// Initialize must be signed by Authority and by the account key itself
// (Account is that key's identity). Append is signed by Owner. Remove and
// Reset are signed by Authority, which must match the account's authority.
type Tx struct {
	Op        Op              `cbor:"op"`
	Account   string          `cbor:"account"`
	CID       string          `cbor:"cid,omitempty"`
	Owner     wallet.Identity `cbor:"owner,omitempty"`
	Authority wallet.Identity `cbor:"authority,omitempty"`
	Nonce     string          `cbor:"nonce"`
}

type Signature struct {
	Signer wallet.Identity `cbor:"signer"`
	Sig    []byte          `cbor:"sig"`
}

type SignedTx struct {
	Tx         Tx          `cbor:"tx"`
	Signatures []Signature `cbor:"signatures"`
}

type Receipt struct {
	TxID   string `cbor:"txid" json:"txid"`
	Count  uint64 `cbor:"count" json:"count"`
	Number uint64 `cbor:"number,omitempty" json:"number,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v as canonical CBOR.
func Marshal(v interface{}) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes CBOR, rejecting duplicate map keys.
func Unmarshal(data []byte, v interface{}) error { return decMode.Unmarshal(data, v) }

// SigningBytes is the canonical encoding every signer signs.
func (tx Tx) SigningBytes() ([]byte, error) { return Marshal(tx) }

// ID is the hex sha3-256 of the signing bytes.
func (tx Tx) ID() (string, error) {
	b, err := tx.SigningBytes()
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Describe is a one-line summary shown when a signature is requested.
func (tx Tx) Describe() string {
	switch tx.Op {
	case OpInitialize:
		return fmt.Sprintf("initialize ledger account %s with authority %s", shortID(tx.Account), tx.Authority.Short())
	case OpAppend:
		return fmt.Sprintf("register %s in account %s", tx.CID, shortID(tx.Account))
	case OpRemove:
		return fmt.Sprintf("remove %s from account %s", tx.CID, shortID(tx.Account))
	case OpReset:
		return fmt.Sprintf("clear every record in account %s", shortID(tx.Account))
	default:
		return fmt.Sprintf("%s on account %s", tx.Op, shortID(tx.Account))
	}
}

// Summarize decodes signing bytes produced by Tx.SigningBytes for an approval
// prompt. It is meant for wallet.WithApproval.
func Summarize(msg []byte) string {
	var tx Tx
	if err := Unmarshal(msg, &tx); err != nil {
		return fmt.Sprintf("sign %d bytes", len(msg))
	}
	return tx.Describe()
}

// Validate checks the fields each Op needs.
func (tx Tx) Validate() error {
	if tx.Account == "" {
		return fmt.Errorf("%w: missing account", ErrInvalidTx)
	}
	if tx.Nonce == "" {
		return fmt.Errorf("%w: missing nonce", ErrInvalidTx)
	}
	switch tx.Op {
	case OpInitialize:
		if err := wallet.Identity(tx.Account).Validate(); err != nil {
			return fmt.Errorf("%w: account id: %v", ErrInvalidTx, err)
		}
		if err := tx.Authority.Validate(); err != nil {
			return fmt.Errorf("%w: authority: %v", ErrInvalidTx, err)
		}
	case OpAppend:
		if tx.CID == "" {
			return fmt.Errorf("%w: missing cid", ErrInvalidTx)
		}
		if err := tx.Owner.Validate(); err != nil {
			return fmt.Errorf("%w: owner: %v", ErrInvalidTx, err)
		}
	case OpRemove:
		if tx.CID == "" {
			return fmt.Errorf("%w: missing cid", ErrInvalidTx)
		}
		fallthrough
	case OpReset:
		if err := tx.Authority.Validate(); err != nil {
			return fmt.Errorf("%w: authority: %v", ErrInvalidTx, err)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidTx, tx.Op)
	}
	return nil
}

// RequiredSigners lists the identities that must sign tx.
func (tx Tx) RequiredSigners() []wallet.Identity {
	switch tx.Op {
	case OpInitialize:
		return []wallet.Identity{tx.Authority, wallet.Identity(tx.Account)}
	case OpAppend:
		return []wallet.Identity{tx.Owner}
	default:
		return []wallet.Identity{tx.Authority}
	}
}

// Verify checks that every required signer has a valid signature on tx.
func (s SignedTx) Verify() error {
	msg, err := s.Tx.SigningBytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	for _, signer := range s.Tx.RequiredSigners() {
		ok := false
		for _, sig := range s.Signatures {
			if sig.Signer != signer {
				continue
			}
			if err := wallet.Verify(signer, msg, sig.Sig); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrBadSignature, signer.Short(), err)
			}
			ok = true
			break
		}
		if !ok {
			return fmt.Errorf("%w: no signature from %s", ErrBadSignature, signer.Short())
		}
	}
	return nil
}

func shortID(id string) string {
	return wallet.Identity(id).Short()
}
