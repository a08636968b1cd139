package pipeline

import (
	"fmt"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/pixelate"
)

type Phase int

const (
	Idle Phase = iota
	Previewing
	Submitting
	Success
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Previewing:
		return "previewing"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failure"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot handed to observers. Gallery is most recent first and
// is whatever the last successful read returned.
type State struct {
	Phase   Phase
	Preview *pixelate.Image
	Failure *Failure
	Gallery []ledger.Record
	// Count is the account's record count from the last successful read.
	Count uint64
}

// Observer receives every transition synchronously and in order. Observers
// run with the session locked and must not call back into it; everything
// they need is in the snapshot.
type Observer interface {
	OnState(State)
	// OnRejected reports a dropped file that did not make it to a preview.
	OnRejected(*Failure)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State    func(State)
	Rejected func(*Failure)
}

func (o ObserverFuncs) OnState(s State) {
	if o.State != nil {
		o.State(s)
	}
}

func (o ObserverFuncs) OnRejected(f *Failure) {
	if o.Rejected != nil {
		o.Rejected(f)
	}
}
