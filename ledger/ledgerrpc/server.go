package ledgerrpc

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pixelate.dev/pixelate/ledger"
)

// Server exposes a ledger.RPC over the Ledger gRPC service.
type Server struct {
	UnimplementedLedgerServer
	Ledger ledger.RPC
	Log    zerolog.Logger
}

func (s *Server) Initialize(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.tx(ctx, "initialize", in, s.Ledger.Initialize)
}

func (s *Server) Append(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.tx(ctx, "append", in, s.Ledger.Append)
}

func (s *Server) Admin(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.tx(ctx, "admin", in, s.Ledger.Admin)
}

func (s *Server) Read(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Ledger == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing ledger")
	}
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "missing account id")
	}
	acct, err := s.Ledger.Read(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	b, err := ledger.Marshal(&acct)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode account")
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) tx(ctx context.Context, method string, in *wrapperspb.BytesValue, apply func(context.Context, ledger.SignedTx) (ledger.Receipt, error)) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Ledger == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing ledger")
	}
	var stx ledger.SignedTx
	if err := ledger.Unmarshal(in.GetValue(), &stx); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: decode transaction: %v", ledger.ErrInvalidTx, err)
	}
	rcpt, err := apply(ctx, stx)
	if err != nil {
		s.Log.Debug().Err(err).Str("method", method).Str("account", stx.Tx.Account).Msg("transaction failed")
		return nil, mapErr(err)
	}
	b, err := ledger.Marshal(&rcpt)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode receipt")
	}
	s.Log.Info().Str("method", method).Str("account", stx.Tx.Account).Str("txid", rcpt.TxID).Uint64("count", rcpt.Count).Msg("transaction applied")
	return wrapperspb.Bytes(b), nil
}
