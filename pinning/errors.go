package pinning

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindNetwork covers transport failures, timeouts and 5xx responses.
	KindNetwork Kind = "network"
	// KindQuotaOrAuth covers credential and quota refusals.
	KindQuotaOrAuth Kind = "quota_or_auth"
	// KindMalformed covers responses that cannot be used: bad bodies, bad
	// CIDs, CIDs that do not match the uploaded bytes, other 4xx.
	KindMalformed Kind = "malformed"
)

// Error is a classified pin failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return "pin: " + msg
}

func (e *Error) Unwrap() error { return e.Cause }

func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// classify maps an HTTP status and optional wire error kind to a Kind.
func classify(status int, wireKind string) Kind {
	switch {
	case status >= 500:
		return KindNetwork
	case status == 401, status == 402, status == 403, status == 413, status == 429:
		return KindQuotaOrAuth
	case wireKind == WireAuth, wireKind == WireQuota:
		return KindQuotaOrAuth
	default:
		return KindMalformed
	}
}
