package ledger

import "errors"

var (
	ErrAlreadyInitialized = errors.New("ledger: account already initialized")
	ErrNotFound           = errors.New("ledger: account not found")
	ErrSigningRejected    = errors.New("ledger: signing rejected")
	ErrUnavailable        = errors.New("ledger: unavailable")
	ErrBadSignature       = errors.New("ledger: missing or invalid signature")
	ErrInvalidTx          = errors.New("ledger: invalid transaction")
	ErrAccountFull        = errors.New("ledger: account is full")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
