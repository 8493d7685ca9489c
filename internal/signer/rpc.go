package signer

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var _ Sender = (*RPCSender)(nil)

// RPCSender submits through a JSON-RPC node.
type RPCSender struct {
	client *rpc.Client
	opts   rpc.TransactionOpts
}

// NewRPCSender submits with preflight skipped, a stale blockhash is the
// caller's problem and is reported back as a submission error.
func NewRPCSender(client *rpc.Client) *RPCSender {
	return &RPCSender{
		client: client,
		opts: rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	}
}

func (s *RPCSender) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return s.client.SendTransactionWithOpts(ctx, tx, s.opts)
}
