package pipeline

import (
	"context"
	"errors"
	"fmt"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/pinning"
	"pixelate.dev/pixelate/raster"
)

var (
	// ErrBusy is returned for any action attempted while a submission runs.
	ErrBusy = errors.New("pipeline: a submission is in progress")
	// ErrNothingToSubmit is returned by Submit without a preview.
	ErrNothingToSubmit = errors.New("pipeline: nothing to submit")
	// ErrAccountExists guards against initializing an account twice.
	ErrAccountExists = errors.New("pipeline: ledger account already exists")
	// ErrAccountMismatch is returned when the key offered for initialization
	// is not the session's account.
	ErrAccountMismatch = errors.New("pipeline: key does not match the session account")
)

// Category says which part of the pipeline failed.
type Category string

const (
	CategoryInput        Category = "input"
	CategoryUpload       Category = "upload"
	CategoryRegistration Category = "registration"
	CategoryGallery      Category = "gallery"
	CategoryAccount      Category = "account"
)

// Kind classifies a failure for the person retrying.
type Kind string

const (
	KindInputRejected    Kind = "InputRejected"
	KindTransientNetwork Kind = "TransientNetwork"
	KindAuthOrPermission Kind = "AuthOrPermission"
	KindProtocol         Kind = "Protocol"
	KindNotFound         Kind = "NotFound"
)

// Failure is the reason a pipeline action did not complete.
type Failure struct {
	Category Category
	Kind     Kind
	Message  string
	Cause    error
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil>"
	}
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Category, f.Kind, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Category, f.Kind)
}

func (f *Failure) Unwrap() error { return f.Cause }

// Human is the message shown to the user.
func (f *Failure) Human() string {
	if f == nil {
		return ""
	}
	return f.Message
}

func IsKind(err error, kind Kind) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return false
	}
	return f.Kind == kind
}

var categoryText = map[Category]string{
	CategoryInput:        "The image could not be used",
	CategoryUpload:       "Upload failed",
	CategoryRegistration: "On-chain registration failed",
	CategoryGallery:      "The image was registered but the gallery could not be refreshed",
	CategoryAccount:      "The ledger account could not be checked",
}

var kindText = map[Kind]string{
	KindInputRejected:    "choose a different file",
	KindTransientNetwork: "the network did not respond, try again",
	KindAuthOrPermission: "the request was refused",
	KindProtocol:         "the service sent an unexpected reply",
	KindNotFound:         "the account does not exist yet",
}

func newFailure(cat Category, kind Kind, cause error) *Failure {
	return &Failure{
		Category: cat,
		Kind:     kind,
		Message:  categoryText[cat] + ": " + kindText[kind] + ".",
		Cause:    cause,
	}
}

func rejectFailure(err error) *Failure {
	f := newFailure(CategoryInput, KindInputRejected, err)
	var re *raster.Error
	switch {
	case errors.As(err, &re) && re.Kind == raster.KindTooLarge:
		f.Message = categoryText[CategoryInput] + ": the file is too large."
	case errors.As(err, &re) && re.Kind == raster.KindWrongType:
		f.Message = categoryText[CategoryInput] + ": that file type is not accepted."
	case errors.As(err, &re):
		f.Message = categoryText[CategoryInput] + ": the file could not be read as an image."
	}
	return f
}

func pinKind(err error) Kind {
	switch {
	case pinning.IsKind(err, pinning.KindNetwork):
		return KindTransientNetwork
	case pinning.IsKind(err, pinning.KindQuotaOrAuth):
		return KindAuthOrPermission
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransientNetwork
	default:
		return KindProtocol
	}
}

func ledgerKind(err error) Kind {
	switch {
	case errors.Is(err, ledger.ErrSigningRejected),
		errors.Is(err, ledger.ErrBadSignature),
		errors.Is(err, ledger.ErrAccountFull):
		return KindAuthOrPermission
	case errors.Is(err, ledger.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransientNetwork
	case errors.Is(err, ledger.ErrNotFound):
		return KindNotFound
	default:
		return KindProtocol
	}
}
