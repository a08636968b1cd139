package wallet

// Approver decides whether a signature request goes ahead. summary is a short
// human-readable description of what is being signed.
type Approver func(summary string) bool

type approving struct {
	Wallet
	approve Approver
	summary func([]byte) string
}

// WithApproval wraps w so that every Sign call is put to approve first.
// A declined request returns ErrRejected and w is never asked to sign.
func WithApproval(w Wallet, approve Approver, summarize func(msg []byte) string) Wallet {
	return &approving{Wallet: w, approve: approve, summary: summarize}
}

func (a *approving) Sign(msg []byte) ([]byte, error) {
	summary := ""
	if a.summary != nil {
		summary = a.summary(msg)
	}
	if !a.approve(summary) {
		return nil, ErrRejected
	}
	return a.Wallet.Sign(msg)
}
