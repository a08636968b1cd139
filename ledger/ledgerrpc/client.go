package ledgerrpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pixelate.dev/pixelate/ledger"
)

// Client implements ledger.RPC over a Ledger gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client LedgerClient

	// Timeout applies per RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

var _ ledger.RPC = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// CallTimeout becomes Client.Timeout.
	CallTimeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra dial options, appended last.
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ledger.ErrUnavailable, target, err)
	}
	return NewClient(cc, opts.CallTimeout), nil
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn, timeout time.Duration) *Client {
	return &Client{cc: cc, client: NewLedgerClient(cc), Timeout: timeout}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Initialize(ctx context.Context, tx ledger.SignedTx) (ledger.Receipt, error) {
	return c.tx(ctx, tx, c.client.Initialize)
}

func (c *Client) Append(ctx context.Context, tx ledger.SignedTx) (ledger.Receipt, error) {
	return c.tx(ctx, tx, c.client.Append)
}

func (c *Client) Admin(ctx context.Context, tx ledger.SignedTx) (ledger.Receipt, error) {
	return c.tx(ctx, tx, c.client.Admin)
}

func (c *Client) Read(ctx context.Context, accountID string) (ledger.Account, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Read(ctx, wrapperspb.String(accountID))
	if err != nil {
		return ledger.Account{}, mapRPC(err)
	}
	var acct ledger.Account
	if err := ledger.Unmarshal(reply.GetValue(), &acct); err != nil {
		return ledger.Account{}, fmt.Errorf("ledger rpc: decode account: %w", err)
	}
	return acct, nil
}

type txCall func(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)

func (c *Client) tx(ctx context.Context, tx ledger.SignedTx, call txCall) (ledger.Receipt, error) {
	b, err := ledger.Marshal(&tx)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("%w: %v", ledger.ErrInvalidTx, err)
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := call(ctx, wrapperspb.Bytes(b))
	if err != nil {
		return ledger.Receipt{}, mapRPC(err)
	}
	var rcpt ledger.Receipt
	if err := ledger.Unmarshal(reply.GetValue(), &rcpt); err != nil {
		return ledger.Receipt{}, fmt.Errorf("ledger rpc: decode receipt: %w", err)
	}
	return rcpt, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
